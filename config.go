// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package amqp

import (
	"time"

	"github.com/packetd/goamqp/common"
	"github.com/packetd/goamqp/confengine"
	"github.com/packetd/goamqp/internal/wire"
	"github.com/packetd/goamqp/logger"
)

// Config is the Dial configuration surface. Every field maps to a
// `config:"..."` tag that confengine.Config.Unpack understands, so a Config
// can be loaded from YAML with LoadConfig or built directly with
// DefaultConfig.
type Config struct {
	Host      string `config:"host"`
	Port      int    `config:"port"`
	VHost     string `config:"vhost"`
	User      string `config:"user"`
	Password  string `config:"password"`
	Mechanism string `config:"mechanism"` // PLAIN, AMQPLAIN, EXTERNAL
	Locale    string `config:"locale"`

	ConnectTimeout time.Duration `config:"connectTimeout"`
	ReadTimeout    time.Duration `config:"readTimeout"`
	WriteTimeout   time.Duration `config:"writeTimeout"`

	Heartbeat  time.Duration `config:"heartbeat"`
	ChannelMax uint16        `config:"channelMax"`
	FrameMax   uint32        `config:"frameMax"`
	Keepalive  time.Duration `config:"keepalive"`

	// WireDialect is "rabbit" or "strict-091". Reads always accept both
	// regardless of this setting; it only affects which quirks are used
	// when encoding outbound frames.
	WireDialect string `config:"wireDialect"`

	// DispatchSignals enables the I/O driver's signal-cooperative wait.
	DispatchSignals bool `config:"dispatchSignals"`

	// Capabilities overrides individual connection.start-ok capability
	// flags this client advertises (see clientProperties); unrecognized
	// keys and values that don't coerce to bool are ignored.
	Capabilities common.Options `config:"capabilities"`

	// Logger is not unpacked from YAML; set it programmatically before
	// calling Dial. A nil Logger defaults to logger.Default().
	Logger logger.Sink `config:"-"`
}

// DefaultConfig returns the client proposals RabbitMQ clients conventionally
// offer: no cap on channel_max (0 lets the broker's proposal win outright
// during tune), a 128 KiB frame_max and 60 s heartbeat proposal, generous
// timeouts, and PLAIN/en_US.
func DefaultConfig() Config {
	return Config{
		Port:            5672,
		VHost:           "/",
		Mechanism:       "PLAIN",
		Locale:          "en_US",
		ConnectTimeout:  30 * time.Second,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		Heartbeat:       60 * time.Second,
		ChannelMax:      0,
		FrameMax:        common.DefaultFrameMax,
		WireDialect:     "rabbit",
		DispatchSignals: true,
	}
}

// LoadConfig reads a YAML Dial configuration from path, starting from
// DefaultConfig and overlaying whatever the file specifies, the same
// layering confengine-based daemons use.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	conf, err := confengine.LoadConfigPath(path)
	if err != nil {
		return Config{}, err
	}
	if err := conf.Unpack(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) dialect() wire.Dialect {
	if c.WireDialect == "strict-091" {
		return wire.DialectStrict091
	}
	return wire.DialectRabbitMQ
}

func (c Config) logger() logger.Sink {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Default()
}
