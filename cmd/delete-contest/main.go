// delete-contest removes a contest by name, including its taskgroups and
// tasks via the CASCADE constraints.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"medal/internal/database"
	"medal/internal/models"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: delete-contest <contest_name>")
		os.Exit(1)
	}

	contestName := os.Args[1]

	config := database.Config{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "medal"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", "medal"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	db, err := database.NewGormConnection(config)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	var contest models.Contest
	if err := db.WithContext(ctx).Where("name = ?", contestName).First(&contest).Error; err != nil {
		log.Fatalf("Failed to find contest '%s': %v", contestName, err)
	}

	fmt.Printf("Found contest: %s (ID: %d)\n", contest.Name, contest.ID)

	var participationCount int64
	if err := db.WithContext(ctx).Model(&models.Participation{}).Where("contest = ?", contest.ID).Count(&participationCount).Error; err != nil {
		log.Fatalf("Failed to check participations: %v", err)
	}
	if participationCount > 0 {
		fmt.Printf("Warning: contest has %d participations. Proceeding with deletion...\n", participationCount)
	}

	if err := db.WithContext(ctx).Delete(&contest).Error; err != nil {
		log.Fatalf("Failed to delete contest: %v", err)
	}

	fmt.Printf("Successfully deleted contest '%s'\n", contestName)
}
