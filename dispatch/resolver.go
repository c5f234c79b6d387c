package dispatch

import "loadflare/log"

// Resolve turns command inputs into immutable specs, applying the global
// default repeat count where no override is present. It validates everything
// the run depends on up front: an empty command list, a non-positive resolved
// count, or a non-positive concurrency ceiling all fail with *ConfigError
// before anything executes.
func Resolve(inputs []CommandInput, globalDefault, ceiling int) ([]CommandSpec, error) {
	if len(inputs) == 0 {
		return nil, configErrorf("no commands given")
	}
	if globalDefault <= 0 {
		return nil, configErrorf("global default repeat count must be positive, got %d", globalDefault)
	}
	if ceiling <= 0 {
		return nil, configErrorf("concurrency ceiling must be positive, got %d", ceiling)
	}

	specs := make([]CommandSpec, 0, len(inputs))
	for _, in := range inputs {
		count := globalDefault
		if in.Override != nil {
			count = *in.Override
		}
		if count <= 0 {
			return nil, configErrorf("repeat count for %q must be positive, got %d", in.Raw, count)
		}
		if len(in.Argv) == 0 {
			return nil, configErrorf("command %q has an empty template", in.Raw)
		}
		specs = append(specs, CommandSpec{
			Raw:           in.Raw,
			Argv:          in.Argv,
			ResolvedCount: count,
		})
		log.DebugLog.Printf("resolved %s to %d repeats", log.SanitizeArgs(in.Argv), count)
	}
	return specs, nil
}
