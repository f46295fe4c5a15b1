// events-tail consumes the engine's lifecycle event topic and prints each
// event, one JSON line per message. Useful when debugging retry and DLQ
// behavior against a running engine.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"github.com/hooklinehq/hookline/internal/engine"
)

func main() {
	nsqdAddr := getEnv("NSQD_TCP_ADDR", "nsqd:4150")
	topic := getEnv("NSQ_EVENTS_TOPIC", "webhook_events")
	channel := getEnv("NSQ_CHANNEL", "events-tail")

	consumer, err := nsq.NewConsumer(topic, channel, nsq.NewConfig())
	if err != nil {
		log.Fatalf("nsq consumer creation failed: %v", err)
	}

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		var ev engine.Event
		if err := json.Unmarshal(m.Body, &ev); err != nil {
			log.Printf("skipping unparseable message: %v", err)
			return nil
		}
		line, _ := json.Marshal(ev)
		fmt.Println(string(line))
		return nil
	}))

	if err := consumer.ConnectToNSQD(nsqdAddr); err != nil {
		log.Fatalf("connect to nsqd failed: %v", err)
	}
	log.Printf("tailing topic %q on %s", topic, nsqdAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	consumer.Stop()
	<-consumer.StopChan
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
