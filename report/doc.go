// Package report publishes node membership changes upstream.
//
// A Reporter periodically takes the dirty set of the bus controller, clears
// it, and publishes one NodeStatus message per changed node, encoded as
// {"address":n,"online":bool}. MQTTPublisher sends them to an MQTT broker.
package report
