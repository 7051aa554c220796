package hapyperion

import (
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"

	haplog "github.com/brutella/hap/log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"crypto/tls"
	"net/url"

	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"
)

var (
	ErrAccessoryExists  = fmt.Errorf("accessory already exists")
	ErrAlreadyConnected = fmt.Errorf("already connected")
)

const (
	// default prefix for mirrored state topics
	MQTT_TOPIC_PREFIX = "hyperion/"

	// Store name for server PIN code
	HYPERION_PIN_STORE = "hyperion_pin"

	// timeout for the startup reachability check of each light
	HYPERION_PROBE_TIMEOUT = 5 * time.Second

	// max number of lights probed at once
	HYPERION_PROBE_CONCURRENCY = 4
)

type Bridge struct {
	// optional MQTT broker and credentials for mirroring state
	MQTTServer   string
	MQTTUsername string
	MQTTPassword string
	TopicPrefix  string

	// address and interfaces to bind to
	ListenAddr string
	Interfaces []string

	DebugMode bool

	ctx       context.Context
	bridgeAcc *accessory.Bridge

	lights []*BridgeLight // in config order
	names  map[string]*BridgeLight
	server *hap.Server
	store  hap.Store
	pin    string

	mqttMutex  sync.RWMutex
	mqttClient mqtt.Client
}

type BridgeLight struct {
	Config    LightConfig
	Adapter   *LightAdapter
	Accessory *accessory.A

	// last known values, mirrored to MQTT
	stateMutex sync.Mutex
	state      map[string]any
}

// Merges a property update into the known state and returns a copy of it
func (bl *BridgeLight) updateState(prop string, val any) map[string]any {
	bl.stateMutex.Lock()
	defer bl.stateMutex.Unlock()

	bl.state[prop] = val

	st := make(map[string]any, len(bl.state))
	for k, v := range bl.state {
		st[k] = v
	}
	return st
}

// Creates and initializes a Bridge.
func NewBridge(ctx context.Context, storeDir string) *Bridge {
	br := &Bridge{
		ctx:   ctx,
		store: hap.NewFsStore(storeDir),

		TopicPrefix: MQTT_TOPIC_PREFIX,
		names:       make(map[string]*BridgeLight),
	}

	br.bridgeAcc = accessory.NewBridge(accessory.Info{
		Name:         "hap-hyperion Bridge",
		Manufacturer: "hapyperion",
	})

	return br
}

// Sets the PIN code for the HAP server.
// If the given pin is empty, it will be read from the store, or failing that,
// one will be generated
func (br *Bridge) SetPin(pin string) (string, error) {
	// if PIN was not explicitly specified, we re-use the existing one from store
	if pin == "" {
		if storePin, err := br.store.Get(HYPERION_PIN_STORE); err == nil {
			pin = string(storePin)
		}
	}

	savePin := pin == ""

	if pin == "" {
		for {
			rnd, err := rand.Int(rand.Reader, big.NewInt(99999999+1))
			if err != nil {
				return "", fmt.Errorf("can't generate PIN: %v", err)
			}

			// pad if necessary
			pin = rnd.Text(10) + "00000000"
			pin = pin[:8]

			// ensure it's not an insecure PIN
			if !hap.InvalidPins[pin] {
				break
			}
		}
	} else if hap.InvalidPins[pin] {
		return "", fmt.Errorf("insecure pin %s", pin)
	}

	// persist the PIN
	if savePin {
		if err := br.store.Set(HYPERION_PIN_STORE, []byte(pin)); err != nil {
			return "", fmt.Errorf("can't persist PIN: %v", err)
		}
	}

	br.pin = pin
	return pin, nil
}

// Returns the PIN
func (br *Bridge) GetPin() string { return br.pin }

// Return number of lights added to the bridge.
func (br *Bridge) NumLights() int {
	return len(br.lights)
}

// Returns the light with the given name, or nil
func (br *Bridge) Light(name string) *BridgeLight {
	return br.names[name]
}

// Creates the accessory for cfg and adds it to this Bridge.
// Light names must be unique.
func (br *Bridge) AddLight(cfg LightConfig) error {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return err
	}

	if _, exists := br.names[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAccessoryExists, cfg.Name)
	}

	acc, adapter, err := createAccessory(cfg)
	if err != nil {
		return err
	}

	bl := &BridgeLight{Config: cfg, Adapter: adapter, Accessory: acc, state: make(map[string]any)}

	// mirror state changes to MQTT, if connected
	adapter.OnChange(func(prop string, val any) {
		if err := br.PublishState(cfg.Name, bl.updateState(prop, val)); err != nil {
			log.Warn().Err(err).Str("accessory", cfg.Name).Msg("cannot publish state")
		}
	})

	br.lights = append(br.lights, bl)
	br.names[cfg.Name] = bl

	log.Info().
		Str("accessory", cfg.Name).
		Str("type", cfg.Accessory).
		Str("url", adapter.Client().URL()).
		Msg("added light")
	return nil
}

// Gets a list of all added accessories
func (br *Bridge) accessories() []*accessory.A {
	var acc []*accessory.A
	for _, l := range br.lights {
		acc = append(acc, l.Accessory)
	}
	return acc
}

// Queries every light once and logs the ones that cannot be reached.
// Unreachable lights are not an error, they may come online later.
func (br *Bridge) ProbeLights(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(HYPERION_PROBE_CONCURRENCY)

	for _, l := range br.lights {
		l := l // per-iteration copy; go.mod targets go 1.21
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, HYPERION_PROBE_TIMEOUT)
			defer cancel()

			info, err := l.Adapter.Client().ServerInfo(probeCtx)
			if err != nil {
				log.Warn().Err(err).Str("accessory", l.Config.Name).Msg("hyperion not reachable")
				return nil
			}

			log.Info().
				Str("accessory", l.Config.Name).
				Int("components", len(info.Components)).
				Msg("hyperion reachable")
			return nil
		})
	}

	_ = g.Wait()
}

// Initializes the hap.Server and calls ListenAndServe().
// ListenAndServe() will block until the context is cancelled
func (br *Bridge) StartHAP() error {
	if br.bridgeAcc == nil {
		return fmt.Errorf("bridge accessory not created yet")
	}

	if len(br.lights) == 0 {
		return fmt.Errorf("no lights added to bridge")
	}

	// initialize PIN, either from store or dynamically generated
	if br.pin == "" {
		if _, err := br.SetPin(""); err != nil {
			return err
		}
	}

	var err error
	br.server, err = hap.NewServer(br.store, br.bridgeAcc.A, br.accessories()...)
	if err != nil {
		return err
	}

	br.server.Pin = br.pin

	br.server.Addr = br.ListenAddr
	br.server.Ifaces = br.Interfaces

	if br.DebugMode {
		haplog.Debug.Enable()
	}

	err = br.server.ListenAndServe(br.ctx)

	// disconnect from MQTT
	br.mqttMutex.Lock()
	if br.mqttClient != nil {
		br.mqttClient.Disconnect(1000)
	}
	br.mqttMutex.Unlock()

	return err
}

// Connects to the MQTT server used for mirroring state.
// Blocks until the connection is established, then auto-reconnect logic takes over
func (br *Bridge) ConnectMQTT() error {
	br.mqttMutex.RLock()
	connected := br.mqttClient != nil && br.mqttClient.IsConnected()
	br.mqttMutex.RUnlock()

	if connected {
		return ErrAlreadyConnected
	}

	opts := mqtt.NewClientOptions().
		AddBroker(br.MQTTServer).
		SetUsername(br.MQTTUsername).
		SetPassword(br.MQTTPassword).
		SetClientID("hap-hyperion").
		SetDialer(&net.Dialer{KeepAlive: -1}).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(2 * time.Second).
		SetConnectRetry(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info().Msg("connected to MQTT broker")
	})

	opts.SetConnectionAttemptHandler(func(broker *url.URL, cfg *tls.Config) *tls.Config {
		log.Info().Msgf("connecting to MQTT %s...", broker)
		return cfg
	})

	client := mqtt.NewClient(opts)

	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return tok.Error()
	}

	br.mqttMutex.Lock()
	br.mqttClient = client
	br.mqttMutex.Unlock()
	return nil
}

// Returns the topic state for the named light is published to
func (br *Bridge) stateTopic(name string) string {
	return br.TopicPrefix + name + "/state"
}

// Publishes a retained state update for the named light.
// Does nothing if MQTT is not connected.
func (br *Bridge) PublishState(name string, payload map[string]any) error {
	br.mqttMutex.RLock()
	client := br.mqttClient
	br.mqttMutex.RUnlock()

	if client == nil {
		return nil
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	topic := br.stateTopic(name)
	if br.DebugMode {
		log.Debug().Str("topic", topic).RawJSON("payload", jsonPayload).Msg("publishing")
	}

	client.Publish(topic, 0, true, jsonPayload)
	return nil
}
