package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/humanwheel-leaderboard/internal/domain"
)

var riderNames = []string{
	"Jonathan", "Martin", "Amelia", "Emilia", "Olivia", "Liam", "Noah", "Ava", "Mia", "Lucas",
	"Ella", "Leo", "Nora", "Hugo", "Ida", "Oskar", "Freya", "Elias", "Maja", "Theo",
}

// rider is a simulated person on the wheel whose speed drifts over time
type rider struct {
	id    string
	name  string
	speed float64
}

func newRiders(n int) []*rider {
	riders := make([]*rider, n)
	for i := range riders {
		name := riderNames[i%len(riderNames)]
		if i >= len(riderNames) {
			name = fmt.Sprintf("%s %d", name, i/len(riderNames)+1)
		}
		riders[i] = &rider{
			id:    "wheel-" + strconv.Itoa(i+1),
			name:  name,
			speed: 12 + rand.Float64()*6,
		}
	}
	return riders
}

// pedal moves the rider's speed by a small random step, kept within a
// plausible human range
func (r *rider) pedal() float64 {
	r.speed += rand.NormFloat64() * 0.6
	r.speed = math.Max(5, math.Min(r.speed, 28))
	return math.Round(r.speed*10) / 10
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "humanwheel-speed-readings", "Kafka topic")
	category := flag.String("category", domain.CategoryTeam, "Leaderboard category")
	totalRiders := flag.Int("riders", 20, "Number of simulated riders")
	readingsPerSecond := flag.Int("rate", 5, "Speed readings per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *totalRiders <= 0 || *readingsPerSecond <= 0 {
		log.Fatal("riders and rate must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("HumanWheel speed producer")
	fmt.Printf("  Brokers:   %s\n", *brokers)
	fmt.Printf("  Topic:     %s\n", *topic)
	fmt.Printf("  Category:  %s\n", *category)
	fmt.Printf("  Riders:    %d\n", *totalRiders)
	fmt.Printf("  Rate:      %d/sec\n", *readingsPerSecond)
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	send := func(reading domain.SpeedReading) {
		data, err := json.Marshal(reading)
		if err != nil {
			log.Printf("Failed to marshal reading: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			// keyed by rider so one rider's readings stay ordered
			Key:   sarama.StringEncoder(reading.PlayerID),
			Value: sarama.ByteEncoder(data),
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	riders := newRiders(*totalRiders)
	ticker := time.NewTicker(time.Second / time.Duration(*readingsPerSecond))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	var readings int64
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-deadline:
			shutdown("Duration reached")
			return

		case <-ticker.C:
			r := riders[rand.Intn(len(riders))]
			send(domain.SpeedReading{
				PlayerID: r.id,
				Name:     r.name,
				Category: *category,
				Speed:    domain.Number(r.pedal()),
			})
			readings++

		case <-statsTicker.C:
			fmt.Printf("[%s] Readings: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				readings,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
