// Package factory builds the collaborators of an ingest session.
//
// The factory switches between recording sinks (FLV and MPEG-TS recorders
// fed by the container output) and in-memory simulated sinks from the
// testing package, without changing the code that builds the session.
//
// # Configuration
//
// The publisher configuration starts from av.DefaultConfig and can be
// overridden with environment variables:
//   - RTCINGEST_USE_SIMULATION: "true" or "false"
//   - RTCINGEST_TICK_INTERVAL: publisher timer period, e.g. "500ms"
//   - RTCINGEST_KEYFRAME_INTERVAL: ticks between keyframe requests
//   - RTCINGEST_JITTER_DEPTH: reorder window in packets
//   - RTCINGEST_JITTER_MAX_DELAY: how long a packet may wait behind a gap
//   - RTCINGEST_REPEAT_SEQUENCE_HEADER: repeat the AVC header before keyframes
//
// Values that do not parse or fall outside the allowed range are logged and
// ignored.
//
// # Usage
//
//	f := factory.NewSinkFactory()
//	sinks, err := f.CreateSinks(factory.Outputs{FLV: file, HasVideo: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sinks.Close()
//
//	session, err := rtcingest.New(f.NewOptions(sinks))
//
// # Testing Support
//
//	sinks := factory.NewSinkFactory().CreateSimulationForTesting()
//	// ... run the session ...
//	plis := sinks.Control.PictureLossIndications()
package factory
