package config

import "time"

// LiveConfig tunes the /socket/mic websocket endpoint.
type LiveConfig struct {
    PingPeriod   time.Duration // server ping interval; the peer must answer within 10/9 of it
    WriteTimeout time.Duration
    HelloTimeout time.Duration // time allowed for the first (mic id) frame
    SendBuffer   int           // queued snapshots per connection
    ReadLimit    int64         // max inbound frame size
}

func LoadLiveConfig() LiveConfig {
    cfg := LiveConfig{
        PingPeriod:   envDur("LIVE_PING_PERIOD", 30*time.Second),
        WriteTimeout: envDur("LIVE_WRITE_TIMEOUT", 5*time.Second),
        HelloTimeout: envDur("LIVE_HELLO_TIMEOUT", 10*time.Second),
        SendBuffer:   envInt("LIVE_SEND_BUFFER", 8),
        ReadLimit:    int64(envInt("LIVE_READ_LIMIT", 512)),
    }
    if cfg.SendBuffer < 1 {
        cfg.SendBuffer = 1
    }
    return cfg
}
