package seed

import (
	"context"
	"fmt"

	"logbook/pkg/types"
)

type CategoryWriter interface {
	UpsertCategory(ctx context.Context, category *types.ToolCategory) error
	DeleteCategoriesNotIn(ctx context.Context, slugs []string) (int64, error)
}

// Categories is the source of truth for tool categories.
//   - To add a category: add it below and run `logbook seed`
//   - To retire one: set IsActive to false. Tools keep the slug, new tools
//     can no longer pick it.
//   - Removing an entry deletes the row; existing tools keep the slug text.
var Categories = []types.ToolCategory{
	{Slug: "audio", Label: "Audio", DisplayOrder: 1, IsActive: true},
	{Slug: "video", Label: "Video", DisplayOrder: 2, IsActive: true},
	{Slug: "jaringan", Label: "Jaringan", DisplayOrder: 3, IsActive: true},
	{Slug: "utility", Label: "Utility", DisplayOrder: 4, IsActive: true},
}

// SeedCategories syncs the database with Categories: new entries are
// inserted, changed ones updated and rows missing from the list deleted.
func SeedCategories(ctx context.Context, repo CategoryWriter) error {
	fmt.Println("Starting category sync...")
	fmt.Printf("  Seed file contains %d categories\n", len(Categories))

	slugs := make([]string, 0, len(Categories))
	for _, cat := range Categories {
		fmt.Printf("  Upserting category: %s (slug: %s)\n", cat.Label, cat.Slug)
		if err := repo.UpsertCategory(ctx, &cat); err != nil {
			return fmt.Errorf("failed to upsert category %s: %w", cat.Slug, err)
		}
		slugs = append(slugs, cat.Slug)
	}

	deleted, err := repo.DeleteCategoriesNotIn(ctx, slugs)
	if err != nil {
		return fmt.Errorf("failed to delete stale categories: %w", err)
	}

	fmt.Printf("\nSync complete: %d upserted, %d deleted\n", len(slugs), deleted)
	return nil
}
