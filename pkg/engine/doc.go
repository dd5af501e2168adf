// Package engine defines the animation engine a command server drives, and
// provides Memory, an in-process reference engine.
//
// # Overview
//
// The engine owns every native-side object: files, artboards, state
// machines, decoded images, fonts and audio clips, and view model instances.
// Objects are addressed by handles allocated by the command queue, so every
// constructor takes the handle it should register under. A handle is only
// meaningful relative to the Engine instance that registered it.
//
// # Files
//
// Memory loads scene documents written in YAML:
//
//	artboards:
//	  - name: Main
//	    width: 400
//	    height: 300
//	    stateMachines: [Idle, Level1]
//	    viewModel: Hero
//	viewModels:
//	  - name: Hero
//	    properties:
//	      - {name: health, type: number}
//	      - {name: mode, type: enum, enum: Mode}
//	      - {name: stats, type: viewModel, viewModel: Stats}
//	    instances:
//	      - name: Default
//	        values: {health: 100, mode: easy}
//	enums:
//	  - name: Mode
//	    values: [easy, hard]
//
// The first artboard is the default artboard and the first state machine of
// an artboard is its default state machine. The first listed instance of a
// view model is its default instance.
//
// # Assets
//
// Images are decoded as PNG, JPEG, GIF, WebP, BMP or TIFF. Fonts are parsed
// as OpenType or TrueType. Audio payloads are accepted when their sniffed
// MIME type is audio/*. Memory keeps only the decoded metadata.
//
// # Errors
//
// Engine failures are *EngineError values classified as not found, invalid,
// decode or conflict. The command server turns them into error callbacks.
package engine
