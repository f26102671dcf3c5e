// Package seed holds the demo quizzes loaded into fresh installs.
package seed

import "quiz-nexus-service/internal/domain"

// DemoQuizzes returns the published demo quizzes authored by authorID. Ids are fixed so
// seeding twice inserts nothing new.
func DemoQuizzes(authorID string) []domain.Quiz {
	quizzes := []domain.Quiz{
		{
			ID:          "demo-maritime-knowledge",
			Title:       "Maersk Maritime Knowledge",
			Description: "Test your knowledge about maritime operations and Maersk history",
			Difficulty:  domain.DifficultyMedium,
			Category:    "Maritime",
			TimeLimit:   300,
			Questions: []domain.Question{
				{ID: "1", Prompt: "In what year was A.P. Moller - Maersk founded?", Options: []string{"1904", "1912", "1920", "1928"}, CorrectAnswer: 0},
				{ID: "2", Prompt: "What is the largest container ship class operated by Maersk?", Options: []string{"Triple E Class", "Ultra Large Container Vessel", "Emma Maersk Class", "MSC Gülsün Class"}, CorrectAnswer: 0},
				{ID: "3", Prompt: "Which color is associated with Maersk containers?", Options: []string{"Red", "Blue", "Green", "Yellow"}, CorrectAnswer: 1},
				{ID: "4", Prompt: "What does TEU stand for in shipping?", Options: []string{"Total Equipment Unit", "Twenty-foot Equivalent Unit", "Transport Efficiency Unit", "Terminal Exchange Unit"}, CorrectAnswer: 1},
				{ID: "5", Prompt: "Where is Maersk headquarters located?", Options: []string{"Oslo, Norway", "Hamburg, Germany", "Copenhagen, Denmark", "Stockholm, Sweden"}, CorrectAnswer: 2},
			},
		},
		{
			ID:          "demo-supply-chain-fundamentals",
			Title:       "Supply Chain Fundamentals",
			Description: "Essential concepts in modern supply chain management",
			Difficulty:  domain.DifficultyEasy,
			Category:    "Logistics",
			TimeLimit:   240,
			Questions: []domain.Question{
				{ID: "6", Prompt: "What is the primary goal of supply chain management?", Options: []string{"Minimize costs", "Maximize efficiency", "Optimize end-to-end value delivery", "Reduce inventory"}, CorrectAnswer: 2},
				{ID: "7", Prompt: "Which term describes goods in process of being transported?", Options: []string{"Inventory", "Stock", "Cargo", "Freight"}, CorrectAnswer: 3},
				{ID: "8", Prompt: "What does JIT stand for in logistics?", Options: []string{"Just In Time", "Joint Inventory Tracking", "Journey Integration Technology", "Job Information Terminal"}, CorrectAnswer: 0},
			},
		},
		{
			ID:          "demo-advanced-maritime-operations",
			Title:       "Advanced Maritime Operations",
			Description: "Complex scenarios in maritime operations and port management",
			Difficulty:  domain.DifficultyHard,
			Category:    "Operations",
			TimeLimit:   600,
			Questions: []domain.Question{
				{ID: "9", Prompt: "What is the maximum draft of a Triple E class container ship?", Options: []string{"14.5 meters", "16.0 meters", "17.5 meters", "19.0 meters"}, CorrectAnswer: 1},
				{ID: "10", Prompt: "Which port is considered the busiest container port in the world?", Options: []string{"Port of Singapore", "Port of Shanghai", "Port of Los Angeles", "Port of Hamburg"}, CorrectAnswer: 1},
				{ID: "11", Prompt: "What is the purpose of ballast water in ships?", Options: []string{"Cooling systems", "Stability and trim", "Fuel storage", "Waste management"}, CorrectAnswer: 1},
			},
		},
	}
	for i := range quizzes {
		quizzes[i].Published = true
		quizzes[i].CreatedBy = authorID
	}
	return quizzes
}
