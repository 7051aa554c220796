package hapyperion

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Which characteristics a light exposes and which component it toggles
type Variant int

const (
	// On only, toggling every component ("ALL")
	VariantPower Variant = iota
	// On, Brightness, Hue and Saturation, toggling the LED device only
	VariantColor
)

func (v Variant) String() string {
	switch v {
	case VariantPower:
		return "power"
	case VariantColor:
		return "color"
	}
	return "unknown"
}

// name of the component targeted by componentstate
func (v Variant) component() string {
	if v == VariantColor {
		return COMPONENT_LEDDEVICE
	}
	return COMPONENT_ALL
}

// Property names passed to ChangeFuncs
const (
	PROP_ON         = "on"
	PROP_BRIGHTNESS = "brightness"
	PROP_HUE        = "hue"
	PROP_SATURATION = "saturation"
)

// delay before a color write, so that a hue change directly followed by a
// saturation change is sent as one RGB command
const LIGHT_SETTLE_DELAY = 100 * time.Millisecond

// Called with every value read from, or committed to, the light
type ChangeFunc func(prop string, val any)

// Maps accessory characteristics onto a Hyperion instance.
//
// Power and brightness are never cached: every read is a serverinfo round trip.
// The color is only held locally since the device cannot report it. Hue changes
// are staged and sent together with the next saturation change.
//
// Transport errors are returned to the caller. Failures reported by the device
// (success=false) are logged and otherwise ignored, except for SetSaturation
// which then keeps the previous color.
type LightAdapter struct {
	Name     string
	Priority int
	Variant  Variant

	SettleDelay time.Duration

	client *Client
	log    zerolog.Logger

	colorMu sync.Mutex
	color   ColorState

	changeFuncs []ChangeFunc
}

// Creates a LightAdapter from the given config.
// Fails with ErrMissingHost if no host was configured.
func NewLightAdapter(cfg LightConfig, variant Variant) (*LightAdapter, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &LightAdapter{
		Name:        cfg.Name,
		Priority:    *cfg.Priority,
		Variant:     variant,
		SettleDelay: LIGHT_SETTLE_DELAY,

		client: client,
		log:    log.With().Str("accessory", cfg.Name).Logger(),
		color:  DefaultColor,
	}, nil
}

func (l *LightAdapter) Client() *Client { return l.client }

func (l *LightAdapter) SetLogger(logger zerolog.Logger) { l.log = logger }

// Registers f to be called on value changes. Not safe to call once requests are served.
func (l *LightAdapter) OnChange(f ChangeFunc) {
	l.changeFuncs = append(l.changeFuncs, f)
}

func (l *LightAdapter) notify(prop string, val any) {
	for _, f := range l.changeFuncs {
		f(prop, val)
	}
}

// Returns whether the light is on.
// A component missing from the serverinfo response reads as off.
func (l *LightAdapter) GetPower(ctx context.Context) (bool, error) {
	l.log.Debug().Msg("get on")

	info, err := l.client.ServerInfo(ctx)
	if err != nil {
		if IsCommandError(err) {
			l.log.Error().Err(err).Msg("cannot get power state")
			return false, nil
		}
		return false, err
	}

	var comp Component
	var found bool

	if l.Variant == VariantPower {
		if len(info.Components) > 0 {
			comp, found = info.Components[0], true
		}
	} else {
		comp, found = info.Component(COMPONENT_LEDDEVICE)
	}

	if !found {
		l.log.Debug().Str("component", l.Variant.component()).Msg("component not reported, assuming off")
	}

	l.notify(PROP_ON, comp.Enabled)
	return comp.Enabled, nil
}

func (l *LightAdapter) SetPower(ctx context.Context, on bool) error {
	l.log.Debug().Bool("value", on).Msg("set on")

	err := l.client.SetComponentState(ctx, l.Variant.component(), on)
	if err != nil {
		if IsCommandError(err) {
			l.log.Error().Err(err).Msgf("failed to set the state to: %v", on)
			return nil
		}
		return err
	}

	l.notify(PROP_ON, on)
	return nil
}

// Returns the brightness adjustment (0-100), or 0 if the device reports none
func (l *LightAdapter) GetBrightness(ctx context.Context) (int, error) {
	l.log.Debug().Msg("get brightness")

	info, err := l.client.ServerInfo(ctx)
	if err != nil {
		if IsCommandError(err) {
			l.log.Error().Err(err).Msg("cannot get brightness")
			return 0, nil
		}
		return 0, err
	}

	brightness := 0
	if len(info.Adjustment) > 0 && info.Adjustment[0].Brightness != nil {
		brightness = int(math.Round(*info.Adjustment[0].Brightness))
	}

	l.notify(PROP_BRIGHTNESS, brightness)
	return brightness, nil
}

// Sets the brightness adjustment.
// A failure reported by the device is logged, the requested value is still reflected.
func (l *LightAdapter) SetBrightness(ctx context.Context, brightness int) error {
	l.log.Debug().Int("value", brightness).Msg("set brightness")

	brightness = min(max(brightness, 0), 100)

	err := l.client.SetAdjustment(ctx, brightness)
	if err != nil {
		if !IsCommandError(err) {
			return err
		}
		l.log.Error().Err(err).Msgf("failed to set the brightness to: %d", brightness)
	}

	l.notify(PROP_BRIGHTNESS, brightness)
	return nil
}

func (l *LightAdapter) Color() ColorState {
	l.colorMu.Lock()
	defer l.colorMu.Unlock()
	return l.color
}

func (l *LightAdapter) GetHue() float64 { return l.Color().Hue }

func (l *LightAdapter) GetSaturation() float64 { return l.Color().Saturation }

// Stages a new hue. Nothing is sent to the device until the next SetSaturation.
func (l *LightAdapter) SetHue(hue float64) float64 {
	l.log.Debug().Float64("value", hue).Msg("set hue")

	l.colorMu.Lock()
	l.color = l.color.WithHue(hue)
	hue = l.color.Hue
	l.colorMu.Unlock()

	l.notify(PROP_HUE, hue)
	return hue
}

// Applies the saturation to the current color and writes it to the device.
// The new color is only committed if the device accepted it.
func (l *LightAdapter) SetSaturation(ctx context.Context, saturation float64) error {
	l.log.Debug().Float64("value", saturation).Msg("set saturation")

	select {
	case <-time.After(l.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	next := l.Color().WithSaturation(saturation)
	r, g, b := next.RGB()

	l.log.Debug().
		Float64("hue", next.Hue).
		Float64("saturation", next.Saturation).
		Ints("rgb", []int{int(r), int(g), int(b)}).
		Msg("writing color")

	err := l.client.SetColor(ctx, l.Priority, r, g, b)
	if err != nil {
		if IsCommandError(err) {
			l.log.Error().Err(err).Msgf("failed to set the color to: [%d, %d, %d]", r, g, b)
			return nil
		}
		return err
	}

	// the committed color is the one the device shows, including its hue
	l.colorMu.Lock()
	l.color = next
	l.colorMu.Unlock()

	l.notify(PROP_SATURATION, next.Saturation)
	return nil
}
