package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robotalks/rtlab/pkg/telemetry"
	"github.com/robotalks/rtlab/pkg/telemetry/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/rtlab/"
)

func init() {
	if val := os.Getenv("RTLAB_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	client, err := mqtt.Dial(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	defer client.Close()

	client.SubEvents(func(topic string, ev *telemetry.Event) {
		ts := time.Unix(0, ev.Timestamp).Format("15:04:05.000")
		if ev.Text != "" {
			log.Printf("%s: %s [%s] %s %d %q", topic, ts, telemetry.Kind(ev.Kind), ev.Source, ev.Value, ev.Text)
			return
		}
		log.Printf("%s: %s [%s] %s %d", topic, ts, telemetry.Kind(ev.Kind), ev.Source, ev.Value)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
