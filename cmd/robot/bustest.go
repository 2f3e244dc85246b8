package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/open-teleop/omnidrive/pkg/bus"
	"github.com/open-teleop/omnidrive/pkg/frame"
)

// runBusTest sends a single frame built from a comma-separated speed list and
// prints both directions of the transfer.
func runBusTest(b bus.Bus, arg string) int {
	speeds, err := parseSpeeds(arg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spi-test: %v\n", err)
		return 2
	}

	f, err := frame.Encode(speeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spi-test: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rx, err := b.Transfer(ctx, f.Bytes())
	if err != nil {
		fmt.Fprintf(os.Stderr, "spi-test: transfer failed: %v\n", err)
		return 1
	}

	fmt.Printf("tx: % x\n", f.Bytes())
	fmt.Printf("rx: % x\n", rx)
	if ack, err := frame.Decode(rx); err == nil {
		fmt.Printf("ack: %s valid=%v\n", ack, ack.Valid())
	}
	return 0
}

func parseSpeeds(arg string) ([]float32, error) {
	parts := strings.Split(arg, ",")
	speeds := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid speed %q: %w", p, err)
		}
		speeds = append(speeds, float32(v))
	}
	return speeds, nil
}
