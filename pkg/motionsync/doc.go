// Package motionsync provides an embeddable recorder that captures
// synchronized IMU sessions from up to four wearable sensors.
//
// A [Recorder] owns a session coordinator. Devices are assigned to body
// slots over a [Link]; once at least two are connected the session is
// armed, and the first threshold signal from any device freezes every
// device, drains its buffered frames and persists the assembled session
// through a [SessionSink]. A session is persisted at most once.
//
// # Basic Usage
//
//	rec, err := motionsync.New(link, sink, motionsync.Config{
//	    Devices: []motionsync.Assignment{
//	        {Slot: motionsync.SlotRightWrist, DeviceID: "C0:FF:EE:00:00:01"},
//	        {Slot: motionsync.SlotLeftWrist, DeviceID: "C0:FF:EE:00:00:02"},
//	    },
//	    AutoCapture: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := rec.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	<-rec.Done()
//	res, _ := rec.Result()
//	_ = rec.Stop()
//
// # Event Handling
//
// Implement [EventHandler] (or embed [BaseEventHandler]) and pass it with
// [WithEventHandler] to observe lifecycle, phase and persistence events.
// Events are delivered synchronously and should return quickly.
//
// # Plugins
//
// Plugins are initialized in registration order when the recorder starts
// and shut down in reverse order when it stops. The configwatcher plugin
// uses [PluginConfig.Tuner] to apply new protocol timing at runtime.
package motionsync
