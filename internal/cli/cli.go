// Package cli binds command line flags, environment variables and a config file to Go variables for cobra
// commands, with flags taking precedence over the environment and the environment over the config file.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"raft-election/internal/logger"
)

// Opt is a single command-line option
type Opt struct {
	DestP   interface{} // pointer to the destination
	Flag    string
	Default interface{}
	Desc    string
}

// NewOpt creates a new command line option.
func NewOpt(destP interface{}, flag string, dflt interface{}, desc string) Opt {
	return Opt{
		DestP:   destP,
		Flag:    flag,
		Default: dflt,
		Desc:    desc,
	}
}

// Program describes a command and its options
type Program struct {
	// Run is invoked by cobra on execute, after every option has been resolved.
	Run func(cmd *cobra.Command, args []string) error
	// Name is the name of the command in help usage
	Name  string
	Short string
	// Opts are the command line/env var/config file options to the command
	Opts []Opt
}

// NewViper returns a viper instance reading environment variables prefixed with the upper-case envPrefix, with
// "-" in option names mapped to "_".
func NewViper(envPrefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(envPrefix))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v
}

// NewCommand creates a cobra command whose options are resolved through v before Run is invoked.
//
// This is to simplify the viper/cobra boilerplate.
func NewCommand(v *viper.Viper, p *Program) *cobra.Command {
	cmd := &cobra.Command{
		Use:   p.Name,
		Short: p.Short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ApplyOptions(v, cmd, p.Opts); err != nil {
				return err
			}
			return p.Run(cmd, args)
		},
	}

	BindOptions(cmd, p.Opts)
	return cmd
}

// BindOptions adds opts to the specified command as flags with their defaults.
func BindOptions(cmd *cobra.Command, opts []Opt) {
	bindFlags(cmd.Flags(), opts)
}

// BindPersistentOptions is BindOptions for flags inherited by every subcommand of cmd.
func BindPersistentOptions(cmd *cobra.Command, opts []Opt) {
	bindFlags(cmd.PersistentFlags(), opts)
}

func bindFlags(fs *pflag.FlagSet, opts []Opt) {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			fs.StringVar(destP, o.Flag, d, o.Desc)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			fs.IntVar(destP, o.Flag, d, o.Desc)
		case *uint64:
			var d uint64
			if o.Default != nil {
				d = o.Default.(uint64)
			}
			fs.Uint64Var(destP, o.Flag, d, o.Desc)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			fs.BoolVar(destP, o.Flag, d, o.Desc)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			fs.DurationVar(destP, o.Flag, d, o.Desc)
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			fs.StringSliceVar(destP, o.Flag, d, o.Desc)
		case *zapcore.Level:
			d := zapcore.InfoLevel
			if o.Default != nil {
				d = o.Default.(zapcore.Level)
			}
			logger.LevelVar(fs, destP, o.Flag, d, o.Desc)
		default:
			// if you get a panic here, sorry about that!
			// anyway, go ahead and add another type.
			panic(fmt.Errorf("unknown destination type %T", o.DestP))
		}
	}
}

// ApplyOptions fills every option whose flag was not given on the command line from v, which consults the
// environment and then the config file. Persistent flags of a parent are visible once cobra has parsed cmd.
func ApplyOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	for _, o := range opts {
		if f := cmd.Flags().Lookup(o.Flag); f != nil && f.Changed {
			continue
		}
		if !v.IsSet(o.Flag) {
			continue
		}

		switch destP := o.DestP.(type) {
		case *string:
			*destP = v.GetString(o.Flag)
		case *int:
			*destP = v.GetInt(o.Flag)
		case *uint64:
			*destP = v.GetUint64(o.Flag)
		case *bool:
			*destP = v.GetBool(o.Flag)
		case *time.Duration:
			*destP = v.GetDuration(o.Flag)
		case *[]string:
			*destP = v.GetStringSlice(o.Flag)
		case *zapcore.Level:
			if err := destP.Set(v.GetString(o.Flag)); err != nil {
				return fmt.Errorf("option %s: %w", o.Flag, err)
			}
		}
	}
	return nil
}

// ReadConfigFile loads a config file into v. The format is taken from the file extension (e.g. .toml).
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}
