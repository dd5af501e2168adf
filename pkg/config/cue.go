package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// schema holds the constraints a CUE file is unified with before it is
// decoded. Durations are strings such as "250ms".
const schema = `
worker?: {
	id?:              string
	device?:          "headless"
	callback_buffer?: int & >=1 & <=65536
}
assets?: {
	dir?:      string
	watch?:    bool
	debounce?: string
	policies?: [...string]
}
journal?: {
	enabled?:   bool
	path?:      string
	buffer?:    int & >=0
	retention?: string
}
scenario?: {
	timeout?: string
}
server?: {
	command?: string
	args?: [...string]
	startup_timeout?: string
	upload?:          string
	ssh?: {
		host?: string
		port?: int & >0 & <=65535
		user?: string
		auth_method?: "password" | "key"
	}
}
`

// ParseCUE evaluates a CUE document, checks it against the config schema
// and decodes the result like Parse. filename is used in error positions.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	s := ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse config: %s", cueerrors.Details(err, nil))
	}

	unified := s.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}

	js, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export config: %w", err)
	}
	return Parse(js)
}
