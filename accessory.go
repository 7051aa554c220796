package hapyperion

import (
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"context"
	"fmt"
	"net/http"
	"sort"
)

var (
	ErrUnknownAccessoryType = fmt.Errorf("unknown accessory type")
	ErrInvalidValue         = fmt.Errorf("invalid characteristic value")
)

// Function that creates an accessory and the adapter backing it.
// These functions are registered using RegisterAccessoryType()
type CreateAccessoryFunc func(cfg LightConfig) (*accessory.A, *LightAdapter, error)

// registered accessory types, keyed by the "accessory" config option
var accessoryTypes = make(map[string]CreateAccessoryFunc)

// Registers a CreateAccessoryFunc under the given accessory type name
func RegisterAccessoryType(name string, f CreateAccessoryFunc) {
	if _, exists := accessoryTypes[name]; exists {
		panic("accessory type registered twice: " + name)
	}
	accessoryTypes[name] = f
}

// Returns the names of all registered accessory types, sorted
func AccessoryTypes() []string {
	var names []string
	for n := range accessoryTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Creates the accessory for cfg using its registered accessory type
func createAccessory(cfg LightConfig) (*accessory.A, *LightAdapter, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, nil, err
	}

	f, ok := accessoryTypes[cfg.Accessory]
	if !ok {
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownAccessoryType, cfg.Accessory)
	}
	return f(cfg)
}

// Creates the bare accessory for a light; callers add services to it
func newLightAccessory(cfg LightConfig, l *LightAdapter) *accessory.A {
	// derive a stable serial number from the device endpoint
	serial := uuid.NewSHA1(uuid.NameSpaceURL, []byte(l.Client().URL()))

	return accessory.New(accessory.Info{
		Name:         cfg.Name,
		SerialNumber: serial.String(),
		Manufacturer: "Hyperion",
		Model:        cfg.Accessory,
	}, accessory.TypeLightbulb)
}

func requestContext(req *http.Request) context.Context {
	if req != nil {
		return req.Context()
	}
	return context.Background()
}

// Wires a Characteristic read to get.
// Errors are reported to the controller as a communication failure.
func bindGetter(l *LightAdapter, c *characteristic.C, get func(ctx context.Context) (any, error)) {
	c.ValueRequestFunc = func(req *http.Request) (any, int) {
		v, err := get(requestContext(req))
		if err != nil {
			log.Error().Err(err).Str("accessory", l.Name).Str("ctyp", c.Type).Msg("cannot read from hyperion")
			return nil, hap.JsonStatusServiceCommunicationFailure
		}
		return v, 0
	}
}

// Wires remote Characteristic updates to set.
// Local updates (without a request) are not forwarded.
func bindSetter(l *LightAdapter, c *characteristic.C, set func(ctx context.Context, v any) error) {
	c.SetValueRequestFunc = func(newVal any, req *http.Request) (any, int) {
		if req == nil {
			return nil, 0
		}

		if err := set(req.Context(), newVal); err != nil {
			log.Error().Err(err).Str("accessory", l.Name).Str("ctyp", c.Type).Msg("cannot update hyperion")
			return nil, hap.JsonStatusServiceCommunicationFailure
		}
		return nil, 0
	}
}

// Binds the On characteristic, shared by all light variants
func bindOn(l *LightAdapter, on *characteristic.On) {
	bindGetter(l, on.C, func(ctx context.Context) (any, error) {
		return l.GetPower(ctx)
	})
	bindSetter(l, on.C, func(ctx context.Context, v any) error {
		b, ok := valToBool(v)
		if !ok {
			return fmt.Errorf("%w: %T %[2]v", ErrInvalidValue, v)
		}
		return l.SetPower(ctx, b)
	})
}
