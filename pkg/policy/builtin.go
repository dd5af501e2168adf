package policy

// MaxAssetBytes is the largest file the asset-size policy admits.
const MaxAssetBytes = 32 << 20

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		assetSizePolicy(),
		assetNamingPolicy(),
	}
}

func assetSizePolicy() Policy {
	return Policy{
		Name:        "asset-size",
		Description: "Rejects assets larger than 32 MiB",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package animkit.builtin.size

import rego.v1

max_bytes := 33554432

deny contains violation if {
	input.asset.size > max_bytes
	violation := {
		"message": sprintf("asset %s is %d bytes, the limit is %d", [input.asset.name, input.asset.size, max_bytes]),
		"severity": "error",
	}
}
`,
	}
}

func assetNamingPolicy() Policy {
	return Policy{
		Name:        "asset-naming",
		Description: "Warns about asset names scripts cannot use as plain identifiers",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package animkit.builtin.naming

import rego.v1

deny contains violation if {
	regex.match("\\s", input.asset.name)
	violation := {
		"message": sprintf("asset name '%s' contains whitespace", [input.asset.name]),
		"severity": "warning",
	}
}

deny contains violation if {
	regex.match("^[0-9]", input.asset.name)
	violation := {
		"message": sprintf("asset name '%s' starts with a digit", [input.asset.name]),
		"severity": "warning",
	}
}
`,
	}
}
