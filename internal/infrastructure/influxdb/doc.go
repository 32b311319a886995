// Package influxdb archives sensor readings in InfluxDB v2.
//
// The Client implements report.Sink, so it is added to the node's sink
// fanout next to the MQTT publisher and the local history:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := report.Fanout{board, mqttSink, client}
//
// Every reading becomes a "sensor_reading" point tagged with node, sensor,
// channel and status. Threshold alarms become "sensor_alarm" points.
//
// Writes go through the non-blocking batching API (batch_size,
// flush_interval); asynchronous errors are delivered to SetOnError.
package influxdb
