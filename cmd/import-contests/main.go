// import-contests loads a contest definition file into the database,
// creating the contest with its taskgroups and tasks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"medal/internal/database"
	"medal/internal/models"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type ContestDefinition struct {
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Filename    string     `json:"filename"`
	Duration    int        `json:"duration_minutes"`
	Public      bool       `json:"public"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	ReviewStart *time.Time `json:"review_start"`
	ReviewEnd   *time.Time `json:"review_end"`
	MinGrade    *int       `json:"min_grade"`
	MaxGrade    *int       `json:"max_grade"`
	Position    int        `json:"position"`

	Taskgroups []TaskgroupDefinition `json:"taskgroups"`
}

type TaskgroupDefinition struct {
	Name     string           `json:"name"`
	Active   *bool            `json:"active"`
	Position int              `json:"position"`
	Tasks    []TaskDefinition `json:"tasks"`
}

type TaskDefinition struct {
	Location string `json:"location"`
	Stars    int    `json:"stars"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: import-contests <contest_file.json>")
		os.Exit(1)
	}

	contestPath := os.Args[1]
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

	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run auto-migration: %v", err)
	}
	if err := importContest(contestPath, db); err != nil {
		log.Fatalf("Failed to import contest: %v", err)
	}

	fmt.Printf("Successfully imported contest from %s\n", contestPath)
}

func importContest(contestPath string, db *database.GormDB) error {
	data, err := os.ReadFile(contestPath)
	if err != nil {
		return fmt.Errorf("failed to read contest file: %w", err)
	}

	var def ContestDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse contest file: %w", err)
	}
	if def.Name == "" {
		return fmt.Errorf("contest name is required")
	}
	if len(def.Taskgroups) == 0 {
		return fmt.Errorf("contest has no taskgroups")
	}

	contest := &models.Contest{
		Name:        def.Name,
		Location:    def.Location,
		Filename:    def.Filename,
		Duration:    def.Duration,
		Public:      def.Public,
		Start:       def.Start,
		End:         def.End,
		ReviewStart: def.ReviewStart,
		ReviewEnd:   def.ReviewEnd,
		MinGrade:    def.MinGrade,
		MaxGrade:    def.MaxGrade,
		Position:    def.Position,
	}

	for i, tg := range def.Taskgroups {
		// Taskgroups default to active unless the file says otherwise.
		active := true
		if tg.Active != nil {
			active = *tg.Active
		}
		position := tg.Position
		if position == 0 {
			position = i + 1
		}
		taskgroup := models.Taskgroup{
			Name:     tg.Name,
			Active:   active,
			Position: position,
		}
		for _, t := range tg.Tasks {
			if t.Stars <= 0 {
				return fmt.Errorf("task %q in %q has no star value", t.Location, tg.Name)
			}
			taskgroup.Tasks = append(taskgroup.Tasks, models.Task{
				Location: t.Location,
				Stars:    t.Stars,
			})
		}
		contest.Taskgroups = append(contest.Taskgroups, taskgroup)
	}

	repo := database.NewContestRepository(db)
	if err := repo.CreateContest(context.Background(), contest); err != nil {
		return fmt.Errorf("failed to create contest: %w", err)
	}

	fmt.Printf("Created contest: %s (ID: %d) with %d taskgroups\n",
		contest.Name, contest.ID, len(contest.Taskgroups))
	return nil
}
