package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/bracket-live/internal/kafka"
)

var fanPrefixes = []string{
	"Echo", "Chorus", "Riff", "Verse", "Bridge", "Hook", "Tempo", "Lyric", "Beat", "Encore",
	"Synth", "Bass", "Treble", "Cadence", "Melody", "Octave", "Reverb", "Solo", "Vinyl", "Groove",
}

func fanName(idx int) string {
	prefixIdx := idx % len(fanPrefixes)
	suffix := idx/len(fanPrefixes) + 1
	return fmt.Sprintf("%s%d", fanPrefixes[prefixIdx], suffix)
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "bracket-votes", "Kafka topic")
	matchList := flag.String("matches", "", "Live match IDs to vote on (comma-separated)")
	totalFans := flag.Int("fans", 1000, "Number of distinct voters")
	votesPerSecond := flag.Int("rate", 50, "Votes per second")
	hotShare := flag.Int("hot", 60, "Percent of votes sent to the first match")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	matches := splitList(*matchList)
	if len(matches) == 0 {
		log.Fatal("at least one match id is required (-matches)")
	}
	if *votesPerSecond <= 0 || *totalFans <= 0 {
		log.Fatal("-rate and -fans must be positive")
	}
	brokerList := splitList(*brokers)

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Bracket Vote Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Matches:          %s\n", strings.Join(matches, ", "))
	fmt.Printf("  Fans:             %d\n", *totalFans)
	fmt.Printf("  Votes/sec:        %d\n", *votesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// the backend keeps one vote per fan per match, so repeats are dropped server side
	pickMatch := func() string {
		if len(matches) == 1 || rand.Intn(100) < *hotShare {
			return matches[0]
		}
		return matches[1+rand.Intn(len(matches)-1)]
	}

	ticker := time.NewTicker(time.Second / time.Duration(*votesPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var voteCount int64
	fmt.Println("Press Ctrl+C to stop")

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			msg := kafka.VoteMessage{
				MatchID: pickMatch(),
				UserID:  fanName(rand.Intn(*totalFans)),
				Choice:  1 + rand.Intn(2),
				CastAt:  time.Now().UnixMilli(),
			}
			data, err := msg.Encode()
			if err != nil {
				log.Printf("Failed to marshal vote: %v", err)
				continue
			}

			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(msg.MatchID),
				Value: sarama.ByteEncoder(data),
			}
			voteCount++

		case <-statsTicker.C:
			fmt.Printf("[%s] Votes: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				voteCount,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
