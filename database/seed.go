package database

import (
	"fmt"

	"trivia-duel/models"
	"trivia-duel/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoUsers are created on an empty database. Password is "password" + N.
var DemoUsers = []string{"user1", "user2", "user3"}

// DemoQuestions is the starter question bank.
var DemoQuestions = []models.Question{
	{ID: "36db16ed-ba8f-4243-bc76-c63dec15b4a1", Prompt: "What is the capital of Finland?", Answer: "Helsinki"},
	{ID: "19f45a71-f804-4833-a278-d5fc38a06952", Prompt: "What is the capital of Sweden?", Answer: "Stockholm"},
	{ID: "340d8851-12ea-4b2d-bf5a-0ec57611d8e0", Prompt: "In what city is the Eiffel Tower located?", Answer: "Paris"},
	{ID: "21350a52-f5c7-4160-9fb7-657c6d41a3da", Prompt: "In what city is the Statue of Liberty located?", Answer: "New York"},
	{ID: "7ca97954-2539-4ec8-aade-7c3265c924d3", Prompt: "What is the capital of France?", Answer: "Paris"},
	{ID: "6ebfa943-5c3d-4b94-aa89-d521d8500a6c", Prompt: "Where is the largest desert in the world located?", Answer: "Sahara"},
	{ID: "65532d23-6e5c-4087-96db-5eb4b136a560", Prompt: "How many continents are there?", Answer: "7"},
	{ID: "eb419af3-d65a-4cdb-8006-14a8a7486735", Prompt: "How many bits are in a byte?", Answer: "8"},
	{ID: "6b0eec8b-9b42-437d-8b55-23a7fe31adb8", Prompt: "What is the capital of the United States?", Answer: "Washington"},
	{ID: "828a4b08-55f7-4aa0-bec9-cdf6deda18d0", Prompt: "What is the capital of Romania?", Answer: "Bucharest"},
	{ID: "d2572b86-51d5-49fc-b229-77cd156b1c00", Prompt: "How many fingers do humans have?", Answer: "10"},
}

// Seed inserts the demo users and questions. Existing rows are left alone, so
// it is safe to run on every boot.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		users := make([]models.User, 0, len(DemoUsers))
		for i, name := range DemoUsers {
			hash, err := utils.HashPassword(fmt.Sprintf("password%d", i+1))
			if err != nil {
				return err
			}
			users = append(users, models.User{Username: name, Password: hash})
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}

	questions := make([]models.Question, len(DemoQuestions))
	copy(questions, DemoQuestions)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&questions).Error; err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	return nil
}
