// Package config loads, validates, watches, and publishes the declarative
// mapping configuration.
//
// # Document Structure
//
// The configuration is a YAML document with five sections:
//
//	global:
//	  update_rate: 500
//	  persistent_joysticks: true
//	midi_devices:
//	  nano:
//	    match_name_regex: "nanoKONTROL2"
//	    controls:
//	      throttle: "CC 7"
//	mouse_devices:
//	  trackball:
//	    match_name_regex: "Kensington"
//	    controls:
//	      x: "REL_X"
//	virtual_joysticks:
//	  wheel:
//	    persistent: true
//	    name: "Virtual Wheel"
//	    properties: {vendor_id: 0x046d, product_id: 0xc294, version: 0x0111}
//	    controls:
//	      steer: "ABS_X"
//	mappings:
//	  - source: {device: trackball, control: x}
//	    destination: {joystick: wheel, control: steer}
//	    transformation:
//	      - steering: {sensitivity: 0.0017, autocenter_halflife: 0.3}
//
// Transformation stages are single-key maps; the key picks the stage type
// and the value carries its parameters. See StageConfig for the stage
// vocabulary.
//
// # Validation
//
// Resolve performs structural and semantic validation: every regex
// compiles, every control literal parses, every mapping references a
// declared device and control, ranges are ordered, parameters are within
// bounds, and no two mappings author the same output control or claim
// force feedback from the same joystick. Resolve returns the compiled form
// (regexes, control identities, per-mapping stage configurations) used by
// the engine to build its wiring.
//
// # Hot Reload
//
// Manager watches the document (and the optional predefines document) via
// fsnotify, coalescing change bursts within a 250ms window. Each
// successful load publishes an immutable Revision to subscribers; a load
// or validation failure is logged and the previous revision stays active.
//
//	mgr := config.NewManager(path, "", logger)
//	rev, err := mgr.Load()        // initial revision; error is fatal here
//	updates := mgr.Subscribe()
//	err = mgr.Start(ctx)          // watch for changes
//	...
//	mgr.Stop(5 * time.Second)
//
// # Predefines
//
// An optional second document maps reusable names to control literals per
// family (midi, mouse, joystick). Device control tables may reference
// these names; they are substituted before validation.
package config
