package hapyperion

import (
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"
)

// The power-only light. Also the default accessory type.
const ACCESSORY_TYPE_POWER = "Hyperion"

func createLightAccessory(cfg LightConfig) (*accessory.A, *LightAdapter, error) {
	l, err := NewLightAdapter(cfg, VariantPower)
	if err != nil {
		return nil, nil, err
	}

	light := service.NewLightbulb()
	bindOn(l, light.On)

	acc := newLightAccessory(cfg, l)
	acc.AddS(light.S)

	return acc, l, nil
}

func init() {
	RegisterAccessoryType(ACCESSORY_TYPE_POWER, createLightAccessory)
}
