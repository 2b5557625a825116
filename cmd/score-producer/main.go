// Command score-producer publishes synthetic game results to the score topic.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/kafka"
)

var namePrefixes = []string{
	"Viper", "Cobra", "Python", "Mamba", "Adder", "Krait", "Taipan", "Boa", "Asp", "Racer",
	"Neon", "Pixel", "Retro", "Turbo", "Glitch", "Nova", "Byte", "Arcade", "Sprite", "Vector",
}

func playerName(idx int) string {
	return fmt.Sprintf("%s%d", namePrefixes[idx%len(namePrefixes)], idx/len(namePrefixes)+1)
}

// nextMessage picks a player and a score. A fifth of the players are "regulars"
// that play most games and score higher, so personal bests keep moving.
func nextMessage(rng *rand.Rand, players int) kafka.ScoreMessage {
	regulars := max(players/5, 1)

	var idx int
	if rng.IntN(100) < 70 {
		idx = rng.IntN(regulars)
	} else {
		idx = rng.IntN(players)
	}

	score := int64(rng.IntN(400))
	if idx < regulars {
		score += int64(rng.IntN(2000))
	}

	return kafka.ScoreMessage{
		Username: playerName(idx),
		Mode:     string(domain.AllModes[rng.IntN(len(domain.AllModes))]),
		Score:    score,
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "snake-scores", "Kafka topic")
	players := flag.Int("players", 200, "Number of distinct players")
	rate := flag.Int("rate", 50, "Messages per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = until interrupted)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *players < 1 || *rate < 1 {
		logger.Error("players and rate must be positive")
		os.Exit(2)
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}

	var sent, failed, queued int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&sent, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&failed, 1)
			logger.Warn("producer error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	logger.Info("producing scores", "brokers", *brokers, "topic", *topic, "players", *players, "rate", *rate)

	for {
		select {
		case <-quit:
			logger.Info("interrupted")
		case <-deadline:
			logger.Info("duration reached")
		case <-statsTicker.C:
			logger.Info("progress",
				"queued", atomic.LoadInt64(&queued),
				"sent", atomic.LoadInt64(&sent),
				"errors", atomic.LoadInt64(&failed),
			)
			continue
		case <-ticker.C:
			msg := nextMessage(rng, *players)
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("failed to encode message", "error", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(msg.Username),
				Value: sarama.ByteEncoder(data),
			}
			atomic.AddInt64(&queued, 1)
			continue
		}
		break
	}

	producer.AsyncClose()
	wg.Wait()
	logger.Info("completed", "sent", atomic.LoadInt64(&sent), "errors", atomic.LoadInt64(&failed))
}
