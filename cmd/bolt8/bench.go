package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pzverkov/bolt8/internal/constants"
	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/handshake"
	"github.com/pzverkov/bolt8/pkg/metrics"
	"github.com/pzverkov/bolt8/pkg/transport"
)

type benchOptions struct {
	handshakes int
	throughput bool
	size       string
	duration   time.Duration
	msgSize    int
}

func (c *cli) benchCmd() *cobra.Command {
	var opts benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure handshake rate and frame throughput",
		Example: `  # Benchmark 1000 handshakes
  bolt8 bench --handshakes 1000

  # Frame 1GB of 64KB messages, at most 30 seconds
  bolt8 bench --handshakes 0 --throughput --size 1GB --duration 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.handshakes, "handshakes", 100, "number of handshakes to run (0 = skip)")
	f.BoolVar(&opts.throughput, "throughput", false, "run the frame throughput benchmark")
	f.StringVar(&opts.size, "size", "100MB", "data size for the throughput test (e.g. 100MB, 1GB)")
	f.DurationVar(&opts.duration, "duration", 10*time.Second, "time limit for the throughput test")
	f.IntVar(&opts.msgSize, "msg-size", constants.MaxMessageSize, "plaintext bytes per frame")
	return cmd
}

func runBench(out io.Writer, opts benchOptions) error {
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║      bolt8 benchmark                                      ║")
	fmt.Fprintln(out, "║      Noise_XK_secp256k1_ChaChaPoly_SHA256                 ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	if opts.handshakes == 0 && !opts.throughput {
		return errors.New("no benchmarks specified: use --handshakes or --throughput")
	}

	if opts.handshakes > 0 {
		if err := benchHandshakes(out, opts.handshakes); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	if opts.throughput {
		size, err := parseSize(opts.size)
		if err != nil {
			return err
		}
		if opts.msgSize <= 0 || opts.msgSize > constants.MaxMessageSize {
			return fmt.Errorf("--msg-size must be in 1..%d", constants.MaxMessageSize)
		}
		return benchThroughput(out, size, opts.duration, opts.msgSize)
	}
	return nil
}

// handshakeBenchBuckets are latency buckets in microseconds.
var handshakeBenchBuckets = []float64{50, 100, 200, 300, 500, 750, 1000, 2000, 5000, 10000}

// handshakeOnce runs the three acts between two fresh key sets.
func handshakeOnce(initStatic, respStatic crypto.PrivateKey, respPub crypto.PublicKey) (*handshake.Result, *handshake.Result, error) {
	ini, err := handshake.NewInitiator(initStatic, crypto.PrivateKey{}, respPub)
	if err != nil {
		return nil, nil, err
	}
	resp, err := handshake.NewResponder(respStatic, crypto.PrivateKey{})
	if err != nil {
		return nil, nil, err
	}
	act1, err := ini.ActOne()
	if err != nil {
		return nil, nil, err
	}
	act2, err := resp.ProcessActOne(act1)
	if err != nil {
		return nil, nil, err
	}
	act3, initRes, err := ini.ProcessActTwo(act2)
	if err != nil {
		return nil, nil, err
	}
	respRes, err := resp.ProcessActThree(act3)
	if err != nil {
		return nil, nil, err
	}
	return initRes, respRes, nil
}

func benchStatics() (crypto.PrivateKey, crypto.PrivateKey, crypto.PublicKey, error) {
	initStatic, err := crypto.GeneratePrivateKey()
	if err != nil {
		return crypto.PrivateKey{}, crypto.PrivateKey{}, crypto.PublicKey{}, err
	}
	respStatic, err := crypto.GeneratePrivateKey()
	if err != nil {
		return crypto.PrivateKey{}, crypto.PrivateKey{}, crypto.PublicKey{}, err
	}
	respPub, err := respStatic.PublicKey()
	return initStatic, respStatic, respPub, err
}

func benchHandshakes(out io.Writer, count int) error {
	fmt.Fprintf(out, "Benchmarking Handshakes (%d iterations)\n", count)
	fmt.Fprintln(out, strings.Repeat("─", 60))

	initStatic, respStatic, respPub, err := benchStatics()
	if err != nil {
		return err
	}

	latency := metrics.NewHistogram(handshakeBenchBuckets)
	failed := 0
	start := time.Now()
	for i := 0; i < count; i++ {
		t := time.Now()
		initRes, respRes, err := handshakeOnce(initStatic, respStatic, respPub)
		if err != nil {
			failed++
			continue
		}
		latency.Observe(float64(time.Since(t).Microseconds()))
		initRes.Conduit.Close()
		respRes.Conduit.Close()

		step := count / 10
		if step == 0 {
			step = 1
		}
		if (i+1)%step == 0 || i == count-1 {
			fmt.Fprintf(out, "Progress: %d/%d (%.0f%%)\r", i+1, count, float64(i+1)/float64(count)*100)
		}
	}
	fmt.Fprintln(out)
	total := time.Since(start)

	if failed == count {
		return errors.New("all handshakes failed")
	}
	s := latency.Summary()
	fmt.Fprintln(out, "\nResults:")
	fmt.Fprintf(out, "  Total handshakes: %d\n", count)
	fmt.Fprintf(out, "  Successful: %d\n", count-failed)
	fmt.Fprintf(out, "  Failed: %d\n", failed)
	fmt.Fprintf(out, "  Total time: %v\n", total)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Handshake Performance (both sides, µs):")
	fmt.Fprintf(out, "  Average: %.0f\n", s.Mean)
	fmt.Fprintf(out, "  Minimum: %.0f\n", s.Min)
	fmt.Fprintf(out, "  Maximum: %.0f\n", s.Max)
	fmt.Fprintf(out, "  p50/p99: %.0f / %.0f\n", s.Percentiles["p50"], s.Percentiles["p99"])
	fmt.Fprintf(out, "  Throughput: %.2f handshakes/sec\n", float64(count-failed)/total.Seconds())
	fmt.Fprintln(out)
	printHandshakeRating(out, time.Duration(s.Mean)*time.Microsecond)
	return nil
}

func printHandshakeRating(out io.Writer, avg time.Duration) {
	switch {
	case avg < 500*time.Microsecond:
		fmt.Fprintln(out, "✓ Performance: Excellent (< 0.5ms avg)")
	case avg < time.Millisecond:
		fmt.Fprintln(out, "✓ Performance: Good (< 1ms avg)")
	case avg < 5*time.Millisecond:
		fmt.Fprintln(out, "⚠ Performance: Acceptable (< 5ms avg)")
	default:
		fmt.Fprintln(out, "⚠ Performance: Slow (> 5ms avg)")
	}
}

// benchThroughput frames msgSize-byte messages on the initiator and opens
// them on the responder, in process, until totalBytes or duration.
func benchThroughput(out io.Writer, totalBytes int64, duration time.Duration, msgSize int) error {
	fmt.Fprintf(out, "Benchmarking Throughput\n")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "Target: %s over at most %v, %d bytes per message\n\n", formatSize(totalBytes), duration, msgSize)

	initStatic, respStatic, respPub, err := benchStatics()
	if err != nil {
		return err
	}
	initRes, respRes, err := handshakeOnce(initStatic, respStatic, respPub)
	if err != nil {
		return err
	}
	sender, receiver := initRes.Conduit, respRes.Conduit
	defer sender.Close()
	defer receiver.Close()

	msg := make([]byte, msgSize)
	for i := range msg {
		msg[i] = byte(i % 256)
	}

	var sent, received int64
	var sealTime, openTime time.Duration
	start := time.Now()
	lastProgress := start
	for sent < totalBytes && time.Since(start) < duration {
		t := time.Now()
		frame, err := sender.Encrypt(msg)
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}
		sealTime += time.Since(t)

		t = time.Now()
		msgs, err := receiver.Decrypt(frame)
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
		openTime += time.Since(t)

		sent += int64(len(msg))
		for _, m := range msgs {
			received += int64(len(m))
		}

		if time.Since(lastProgress) >= time.Second {
			mbps := float64(sent) / time.Since(start).Seconds() / 1024 / 1024
			fmt.Fprintf(out, "Progress: %s / %s (%.1f MB/s)\r", formatSize(sent), formatSize(totalBytes), mbps)
			lastProgress = time.Now()
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "\nResults:")
	fmt.Fprintf(out, "  Data framed: %s\n", formatSize(sent))
	fmt.Fprintf(out, "  Data opened: %s\n", formatSize(received))
	fmt.Fprintf(out, "  Key rotations: %d\n", sender.Rotations(transport.Outbound))
	fmt.Fprintln(out)

	var sealMBps, openMBps float64
	if sealTime > 0 {
		sealMBps = float64(sent) / sealTime.Seconds() / 1024 / 1024
		fmt.Fprintf(out, "Encrypt Throughput: %.2f MB/s (%.2f Mbps)\n", sealMBps, sealMBps*8)
	}
	if openTime > 0 {
		openMBps = float64(received) / openTime.Seconds() / 1024 / 1024
		fmt.Fprintf(out, "Decrypt Throughput: %.2f MB/s (%.2f Mbps)\n", openMBps, openMBps*8)
	}
	printThroughputRating(out, (sealMBps+openMBps)/2)
	return nil
}

func printThroughputRating(out io.Writer, avgMBps float64) {
	fmt.Fprintln(out)
	switch {
	case avgMBps > 500:
		fmt.Fprintln(out, "✓ Performance: Excellent (> 500 MB/s)")
	case avgMBps > 200:
		fmt.Fprintln(out, "✓ Performance: Good (> 200 MB/s)")
	case avgMBps > 50:
		fmt.Fprintln(out, "✓ Performance: Acceptable (> 50 MB/s)")
	default:
		fmt.Fprintln(out, "⚠ Performance: May need optimization (< 50 MB/s)")
	}
}

// parseSize parses sizes like "100MB" or "1GB".
func parseSize(s string) (int64, error) {
	var value int64
	var unit string
	if n, _ := fmt.Sscanf(s, "%d%s", &value, &unit); n == 0 || value <= 0 {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	switch strings.ToUpper(unit) {
	case "", "B":
		return value, nil
	case "KB", "K":
		return value << 10, nil
	case "MB", "M":
		return value << 20, nil
	case "GB", "G":
		return value << 30, nil
	default:
		return 0, fmt.Errorf("invalid size unit: %q", unit)
	}
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(div), units[exp])
}
