package main

import (
	"encoding/json"
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
	"github.com/google/uuid"
	"github.com/leaderboard-live/internal/kafka"
)

var namePrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

var countries = []string{"TR", "DE", "GB", "US", "BR", "JP", "KR", "FR", "NL", "PL"}

func playerID(idx int) string {
	return fmt.Sprintf("player-%06d", idx)
}

func playerName(idx int) string {
	return fmt.Sprintf("%s%d", namePrefixes[idx%len(namePrefixes)], idx/len(namePrefixes)+1)
}

// awardProducer publishes award messages and counts delivery results
type awardProducer struct {
	producer sarama.AsyncProducer
	topic    string
	done     chan struct{}
	wg       sync.WaitGroup
	sent     int64
	failed   int64
}

func newAwardProducer(brokers []string, topic string) (*awardProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	p := &awardProducer{
		producer: producer,
		topic:    topic,
		done:     make(chan struct{}),
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&p.sent, 1)
		}
	}()
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&p.failed, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	return p, nil
}

// send publishes an award keyed by player so a player's awards stay on one
// partition
func (p *awardProducer) send(award kafka.AwardMessage) {
	data, err := json.Marshal(award)
	if err != nil {
		log.Printf("Failed to marshal award: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(award.PlayerID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.Input() <- msg:
	case <-p.done:
	}
}

func (p *awardProducer) close() {
	close(p.done)
	p.producer.AsyncClose()
	p.wg.Wait()
	fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&p.sent), atomic.LoadInt64(&p.failed))
}

// randomAward favors the first players so the top of the board moves
func randomAward(players int) kafka.AwardMessage {
	idx := rand.Intn(players)
	if players > 20 && rand.Intn(100) < 70 {
		idx = rand.Intn(20)
	}
	return kafka.AwardMessage{
		PlayerID:  playerID(idx),
		Amount:    int64(rand.Intn(50) + 1),
		GameID:    uuid.NewString(),
		Timestamp: time.Now(),
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "leaderboard-awards", "Kafka topic")
	totalPlayers := flag.Int("players", 1000, "Total number of players to create")
	awardsPerSecond := flag.Int("rate", 100, "Awards per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	initialOnly := flag.Bool("initial-only", false, "Only create initial players, no continuous awards")
	flag.Parse()

	if *totalPlayers <= 0 || *awardsPerSecond <= 0 {
		log.Fatal("players and rate must be positive")
	}

	fmt.Println("Award producer")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Players:     %d\n", *totalPlayers)
	fmt.Printf("  Awards/sec:  %d\n", *awardsPerSecond)
	fmt.Println()

	p, err := newAwardProducer(strings.Split(*brokers, ","), *topic)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// The first award of a player carries its profile, which registers it
	fmt.Printf("Registering %d players...\n", *totalPlayers)
	for i := 0; i < *totalPlayers; i++ {
		p.send(kafka.AwardMessage{
			PlayerID:  playerID(i),
			Name:      playerName(i),
			Country:   countries[i%len(countries)],
			Amount:    int64(rand.Intn(500)),
			Timestamp: time.Now(),
		})
	}
	fmt.Printf("Registered %d players\n\n", *totalPlayers)

	if *initialOnly {
		p.close()
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*awardsPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	fmt.Println("Sending awards, press Ctrl+C to stop")
	var awards int64
	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			p.close()
			return

		case <-deadline:
			fmt.Println("\nDuration reached, shutting down...")
			p.close()
			return

		case <-ticker.C:
			p.send(randomAward(*totalPlayers))
			awards++

		case <-statsTicker.C:
			fmt.Printf("[%s] Awards: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				awards,
				atomic.LoadInt64(&p.sent),
				atomic.LoadInt64(&p.failed),
			)
		}
	}
}
