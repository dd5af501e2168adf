// Package policy decides with Open Policy Agent whether a file may be
// registered as a global asset.
//
// Policies are Rego modules. Each one declares a deny set in its package;
// every element is either a message string or an object with "message" and
// optional "severity". Violations of severity error or critical reject the
// asset; info and warning violations are reported but let it through.
//
// The input document is:
//
//	{
//	  "asset": {"name": "logo", "kind": "image", "mime": "image/png",
//	            "size": 5120, "path": "/srv/assets/logo.png"},
//	  "context": {"worker_id": "...", "operation": "register",
//	              "timestamp": "2026-01-02T15:04:05Z"}
//	}
//
// A policy that rejects audio larger than one megabyte:
//
//	package animkit.assets.audio
//
//	import rego.v1
//
//	deny contains violation if {
//		input.asset.kind == "audio"
//		input.asset.size > 1048576
//		violation := {"message": sprintf("%s is too large for audio", [input.asset.name])}
//	}
//
// # Built-in Policies
//
//   - asset-size rejects files larger than 32 MiB.
//   - asset-naming warns about names that contain whitespace or start with
//     a digit, since scripts look them up by name.
package policy
