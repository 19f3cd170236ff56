package config

// BrokerConfig locates the message brokers.  Both are optional: an empty
// URL disables the feature.
//
//   RABBITMQ_URL (or AMQP_URL) – activity events on the mic.activity queue
//   ACTIVITY_CONSUMER          – run the activity-log consumer in-process
//   ACTIVITY_LOG               – file the consumer appends to
//   NATS_URL                   – cross-instance snapshot relay
//   NATS_SUBJECT_PREFIX        – subject prefix, default "mic.snapshot"
type BrokerConfig struct {
    AMQPURL          string
    ActivityConsumer bool
    ActivityLog      string
    NATSURL          string
    SubjectPrefix    string
}

func LoadBrokerConfig() BrokerConfig {
    return BrokerConfig{
        AMQPURL:          envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
        ActivityConsumer: envBool("ACTIVITY_CONSUMER", true),
        ActivityLog:      envStr("ACTIVITY_LOG", "logs/mic_activity.log"),
        NATSURL:          envStr("NATS_URL", ""),
        SubjectPrefix:    envStr("NATS_SUBJECT_PREFIX", "mic.snapshot"),
    }
}
