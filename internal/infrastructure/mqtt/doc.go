// Package mqtt connects the sensor node to its MQTT broker.
//
// The node publishes one retained message per channel reading, a
// non-retained message per threshold alarm, and a retained online/offline
// status guarded by a Last Will. It subscribes to a command topic so that
// sensors can be recalibrated or put into low power remotely.
//
// # Topics
//
//	{prefix}/{node}/reading/{sensor}/{channel}   retained reading
//	{prefix}/{node}/alarm/{sensor}               threshold alarm
//	{prefix}/{node}/status                       online/offline, LWT
//	{prefix}/{node}/command/{sensor}/{action}    inbound command
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix, Node: cfg.Node.ID}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := report.NewMQTTSink(client, topics, encoder, byte(cfg.MQTT.QoS))
//
// Connection loss is handled by paho's auto-reconnect with backoff between
// reconnect.initial_delay and reconnect.max_delay; subscriptions are restored
// and the online status is republished on every reconnect.
package mqtt
