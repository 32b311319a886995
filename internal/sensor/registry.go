package sensor

// Registry is the catalogue of devices known to the node.
//
// Names are expected to be unique but the registry does not enforce it:
// Lookup returns the first device registered under a name.
type Registry struct {
	devices []Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends dev to the registry.
func (r *Registry) Register(dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	if dev.Name() == "" {
		return ErrUnnamed
	}
	r.devices = append(r.devices, dev)
	return nil
}

// Lookup returns the first device registered as name.
func (r *Registry) Lookup(name string) (Device, error) {
	for _, d := range r.devices {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

// Devices returns all registered devices in registration order.
func (r *Registry) Devices() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int { return len(r.devices) }
