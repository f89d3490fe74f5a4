package cfg

import (
	"flag"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Registerer is a configuration struct registering its flags.
type Registerer interface {
	RegisterFlags(*flag.FlagSet)
}

// Source is a generic configuration source. This function may do whatever is
// required to obtain the configuration. It is passed a pointer to the
// destination, which may already contain data from previous sources.
type Source func(interface{}) error

// Unmarshal merges the values of the various configuration sources and sets them on
// `dst`.
func Unmarshal(dst interface{}, sources ...Source) error {
	if len(sources) == 0 {
		panic("No sources supplied to cfg.Unmarshal(). This is most likely a programming issue and should never happen. Check the code!")
	}
	for _, source := range sources {
		if err := source(dst); err != nil {
			return errors.Wrap(err, "sourcing")
		}
	}
	return nil
}

// Defaults registers the flags of dst on fs, which sets dst to the flag
// defaults. Later sources override them.
func Defaults(fs *flag.FlagSet) Source {
	return func(dst interface{}) error {
		r, ok := dst.(Registerer)
		if !ok {
			return errors.New("dst does not register flags")
		}
		r.RegisterFlags(fs)
		return nil
	}
}

// YAML decodes data into dst. Unknown fields are an error.
func YAML(data []byte) Source {
	return func(dst interface{}) error {
		return yaml.UnmarshalStrict(data, dst)
	}
}

// YAMLFile decodes the file at path into dst. An empty path is a no-op.
// With expandEnv, ${VAR} references in the file are replaced by the
// environment before decoding.
func YAMLFile(path string, expandEnv bool) Source {
	return func(dst interface{}) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "Error reading config file")
		}
		if expandEnv {
			s, err := envsubst.EvalEnv(string(data))
			if err != nil {
				return errors.Wrapf(err, "Error expanding env variables in config file %s", path)
			}
			data = []byte(s)
		}
		return errors.Wrapf(YAML(data)(dst), "Error parsing config file %s", path)
	}
}

// Flags parses args against fs. fs must be the flag set given to Defaults.
func Flags(fs *flag.FlagSet, args []string) Source {
	return func(interface{}) error {
		return fs.Parse(args)
	}
}

// FileFromArgs returns the value of the -name flag in args, without parsing
// them. It allows to read the config file before any other flag.
func FileFromArgs(args []string, name string) string {
	for i, arg := range args {
		arg = strings.TrimLeft(arg, "-")
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v
		}
	}
	return ""
}

// BoolFromArgs reports whether the boolean -name flag is set in args,
// without parsing them.
func BoolFromArgs(args []string, name string) bool {
	for _, arg := range args {
		arg = strings.TrimLeft(arg, "-")
		if arg == name || arg == name+"=true" {
			return true
		}
	}
	return false
}

// RegisterKingpin exposes every flag of fs as a flag of app. Unset flags
// keep the value already held by their destination.
func RegisterKingpin(fs *flag.FlagSet, app *kingpin.Application) {
	fs.VisitAll(func(f *flag.Flag) {
		app.Flag(f.Name, f.Usage).SetValue(f.Value)
	})
}
