// README: Prints a price suggestion for a sample dish, from Gemini when GEMINI_API_KEY is set, else the fallback formula.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"potluck/internal/logger"
	"potluck/internal/modules/pricing"
)

func main() {
	attrs := pricing.DishAttributes{}
	flag.StringVar(&attrs.Name, "name", "Jollof Rice with Chicken", "dish name")
	flag.StringVar(&attrs.Description, "description", "Smoky party jollof, grilled thigh, fried plantain", "dish description")
	flag.StringVar(&attrs.CuisineType, "cuisine", "west african", "cuisine type")
	flag.StringVar(&attrs.PortionSize, "portion", "large", "portion size")
	flag.StringVar(&attrs.ChefExperience, "experience", pricing.ExperienceIntermediate, "new, intermediate or experienced")
	flag.StringVar(&attrs.Location, "zip", "10001", "chef zip code")
	timeout := flag.Duration("timeout", 5*time.Second, "oracle timeout")
	flag.Parse()

	log, err := logger.New("info", true)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	var oracle pricing.Oracle
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		gemini, err := pricing.NewGeminiOracle(ctx, apiKey)
		if err != nil {
			log.Fatal("init gemini", zap.Error(err))
		}
		defer gemini.Close()
		oracle = gemini
	}

	s := pricing.NewService(oracle, nil, *timeout, log, nil).Suggest(ctx, "pricedemo", attrs)

	fmt.Printf("Dish:       %s (%s, %s)\n", attrs.Name, attrs.CuisineType, attrs.PortionSize)
	fmt.Printf("Source:     %s\n", s.Source)
	fmt.Printf("Suggested:  %s\n", s.Suggested)
	fmt.Printf("Range:      %s - %s\n", s.Min, s.Max)
	fmt.Printf("Breakdown:  ingredients %s, utilities %s, packaging %s, platform %s, profit %s\n",
		s.Breakdown.Ingredients, s.Breakdown.Utilities, s.Breakdown.Packaging, s.Breakdown.PlatformFee, s.Breakdown.Profit)
	if s.Reasoning != "" {
		fmt.Printf("Reasoning:  %s\n", s.Reasoning)
	}
}
