package service

import "github.com/humanwheel-leaderboard/internal/domain"

// SeedCategories are the categories populated by Seed
var SeedCategories = []string{domain.CategoryTeam, domain.CategoryLocal, domain.CategoryGlobal}

// SeedPlayers is the demo roster. Laps and score are derived on write.
var SeedPlayers = []domain.PlayerSubmission{
	{ID: "1", Name: "Jonathan", Avatar: "https://images.unsplash.com/photo-1506794778202-cad84cf45f1d", Speed: 18.4},
	{ID: "2", Name: "Martin", Avatar: "https://images.unsplash.com/photo-1560250097-0b93528c311a", Speed: 17.9},
	{ID: "3", Name: "Amelia", Avatar: "https://images.unsplash.com/photo-1438761681033-6461ffad8d80", Speed: 17.2},
	{ID: "4", Name: "Emilia", Avatar: "https://images.unsplash.com/photo-1557053910-d9eadeed1c58", Speed: 16.8},
	{ID: "5", Name: "Olivia", Avatar: "https://images.unsplash.com/photo-1580489944761-15a19d654956", Speed: 16.4},
	{ID: "6", Name: "Liam", Avatar: "https://images.unsplash.com/photo-1724435811349-32d27f4d5806", Speed: 15.9},
	{ID: "7", Name: "Noah", Avatar: "https://images.unsplash.com/photo-1506794778202-cad84cf45f1d", Speed: 15.2},
}
