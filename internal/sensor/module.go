package sensor

import (
	"context"
	"fmt"
)

// MaxModuleMembers is the number of devices that can share one module.
const MaxModuleMembers = 3

// ModuleStatus is the last operation a module performed on its resource.
type ModuleStatus uint8

// Module statuses.
const (
	ModuleInit ModuleStatus = iota
	ModuleOpen
	ModuleClose
	ModuleRead
	ModuleWrite
	ModuleControl
	ModuleLowPowerIn
	ModuleLowPowerOut
)

var moduleStatusNames = [...]string{"init", "open", "close", "read", "write", "control", "lpm_in", "lpm_out"}

func (s ModuleStatus) String() string {
	if int(s) < len(moduleStatusNames) {
		return moduleStatusNames[s]
	}
	return fmt.Sprintf("module_status(%d)", uint8(s))
}

// ModuleInitializer prepares the shared resource once for all members.
type ModuleInitializer interface {
	InitModule(ctx context.Context, dev Device) error
}

// ModuleOpener brings the shared resource up. It also handles low-power exit.
type ModuleOpener interface {
	OpenModule(ctx context.Context, dev Device) error
}

// ModuleCloser releases the shared resource. It also handles low-power entry.
type ModuleCloser interface {
	CloseModule(ctx context.Context, dev Device) error
}

// Module is a physical resource shared by up to MaxModuleMembers devices.
//
// The driver passed to NewModule supplies the hooks by implementing any of
// ModuleInitializer, ModuleOpener and ModuleCloser. A hook only runs when the
// requested status differs from the current one, and the status only changes
// when the hook succeeds.
type Module struct {
	name    string
	driver  any
	status  ModuleStatus
	members []Device
}

// NewModule creates a module named name in the given starting status.
func NewModule(name string, driver any, initial ModuleStatus) *Module {
	return &Module{
		name:   name,
		driver: driver,
		status: initial,
	}
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Status returns the current module status.
func (m *Module) Status() ModuleStatus { return m.status }

// Members returns the attached devices in attach order.
func (m *Module) Members() []Device {
	out := make([]Device, len(m.members))
	copy(out, m.members)
	return out
}

// Attach adds dev to the module and points dev at it.
func (m *Module) Attach(dev Device) error {
	if dev == nil {
		return ErrNilDevice
	}
	mem, ok := dev.(Member)
	if !ok {
		return fmt.Errorf("attaching %s to %s: %w", dev.Name(), m.name, ErrUnsupported)
	}
	if len(m.members) >= MaxModuleMembers {
		return fmt.Errorf("attaching %s to %s: %w", dev.Name(), m.name, ErrModuleFull)
	}
	m.members = append(m.members, dev)
	mem.setModule(m)
	return nil
}

// transition runs the hook guarding status on behalf of dev.
// Modules without a hook for status are left untouched.
func (m *Module) transition(ctx context.Context, status ModuleStatus, dev Device) error {
	var hook func(context.Context, Device) error
	switch status {
	case ModuleInit:
		if h, ok := m.driver.(ModuleInitializer); ok {
			hook = h.InitModule
		}
	case ModuleOpen, ModuleLowPowerOut:
		if h, ok := m.driver.(ModuleOpener); ok {
			hook = h.OpenModule
		}
	case ModuleClose, ModuleLowPowerIn:
		if h, ok := m.driver.(ModuleCloser); ok {
			hook = h.CloseModule
		}
	}
	if hook == nil || m.status == status {
		return nil
	}
	if err := hook(ctx, dev); err != nil {
		return fmt.Errorf("module %s %s: %w", m.name, status, err)
	}
	m.status = status
	return nil
}
