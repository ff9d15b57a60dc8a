// Command nscope-cli is a minimal example program demonstrating the core
// device API: list the bench, open the first scope found, set a pulse
// output, and print status. Example programs are an out-of-scope external
// collaborator (spec.md §1); this is kept intentionally thin.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/nlabs-nscope/nscope-go/internal/bench"
	"github.com/nlabs-nscope/nscope-go/internal/scope"
)

func main() {
	freq := flag.Float64("freq", 1000.0, "pulse output frequency, Hz")
	duty := flag.Float64("duty", 0.5, "pulse output duty cycle, (0,1)")
	channel := flag.Int("channel", 0, "pulse output channel, 0 or 1")
	sampleRate := flag.Float64("rate", 0, "if > 0, also stream this many Hz of sample data for one second")
	flag.Parse()

	links, err := bench.List()
	if err != nil {
		log.Fatalf("list bench: %v", err)
	}
	if len(links) == 0 {
		log.Fatal("no nScope found")
	}

	log.Printf("found %d device(s); opening %s", len(links), links[0])
	dev, err := bench.Open(links[0], true)
	if err != nil {
		log.Fatalf("open %s: %v", links[0], err)
	}
	defer dev.Close()

	_, err = dev.SetPulseOutput(*channel, scope.PulseOutput{IsOn: true, Frequency: *freq, Duty: *duty})
	if err != nil {
		log.Fatalf("set pulse output: %v", err)
	}
	log.Printf("pulse channel %d now on, %.2f Hz @ %.0f%% duty", *channel, *freq, *duty*100)

	if *sampleRate > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		var channelOn [4]bool
		channelOn[0] = true
		batches, err := dev.RequestContinuous(ctx, *sampleRate, channelOn)
		if err != nil {
			log.Fatalf("request data: %v", err)
		}
		count := 0
		for batch := range batches {
			count += len(batch.Samples)
		}
		log.Printf("captured %d samples in one second", count)
	}

	log.Printf("device: %s", dev)
}
