package hapyperion

import (
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"context"
	"fmt"
	"math"
)

// The full-service light with brightness and color control
const ACCESSORY_TYPE_COLOR = "HyperionLight"

func createColorLightAccessory(cfg LightConfig) (*accessory.A, *LightAdapter, error) {
	l, err := NewLightAdapter(cfg, VariantColor)
	if err != nil {
		return nil, nil, err
	}

	light := service.NewLightbulb()
	bindOn(l, light.On)

	brightness := characteristic.NewBrightness()
	light.AddC(brightness.C)
	bindGetter(l, brightness.C, func(ctx context.Context) (any, error) {
		return l.GetBrightness(ctx)
	})
	bindSetter(l, brightness.C, func(ctx context.Context, v any) error {
		f, ok := valToFloat64(v)
		if !ok {
			return fmt.Errorf("%w: %T %[2]v", ErrInvalidValue, v)
		}
		return l.SetBrightness(ctx, int(math.Round(f)))
	})

	// hue and saturation are served from local state
	hue := characteristic.NewHue()
	light.AddC(hue.C)
	bindGetter(l, hue.C, func(context.Context) (any, error) {
		return l.GetHue(), nil
	})
	bindSetter(l, hue.C, func(_ context.Context, v any) error {
		f, ok := valToFloat64(v)
		if !ok {
			return fmt.Errorf("%w: %T %[2]v", ErrInvalidValue, v)
		}
		l.SetHue(f)
		return nil
	})

	saturation := characteristic.NewSaturation()
	light.AddC(saturation.C)
	bindGetter(l, saturation.C, func(context.Context) (any, error) {
		return l.GetSaturation(), nil
	})
	bindSetter(l, saturation.C, func(ctx context.Context, v any) error {
		f, ok := valToFloat64(v)
		if !ok {
			return fmt.Errorf("%w: %T %[2]v", ErrInvalidValue, v)
		}
		return l.SetSaturation(ctx, f)
	})

	acc := newLightAccessory(cfg, l)
	acc.AddS(light.S)

	return acc, l, nil
}

func init() {
	RegisterAccessoryType(ACCESSORY_TYPE_COLOR, createColorLightAccessory)
}
