package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/services"
)

var (
	foods = collection[models.Food]{
		noun:    "food",
		service: func(a *App) *services.OfflineService[models.Food] { return a.Facade.Foods },
		describe: func(f models.Food) string {
			name := f.Name
			if f.Brand != "" {
				name += " (" + f.Brand + ")"
			}
			return fmt.Sprintf("%s  %.0f kcal  P%.1f C%.1f F%.1f", name, f.Macros.Kcal, f.Macros.Protein, f.Macros.Carbs, f.Macros.Fat)
		},
	}
	entries = collection[models.DiaryEntry]{
		noun:    "entry",
		dated:   true,
		service: func(a *App) *services.OfflineService[models.DiaryEntry] { return a.Facade.Entries },
		describe: func(e models.DiaryEntry) string {
			food := e.FoodID
			if food == "" {
				food = fmt.Sprintf("local food %d", e.FoodLocalKey)
			}
			return fmt.Sprintf("%s  %gg of %s", e.MealType, e.Quantity.Grams, food)
		},
	}
	weights = collection[models.Weight]{
		noun:     "weight",
		dated:    true,
		service:  func(a *App) *services.OfflineService[models.Weight] { return a.Facade.Weights },
		describe: func(w models.Weight) string { return fmt.Sprintf("%g kg", w.WeightKg) },
	}
	water = collection[models.Water]{
		noun:     "water",
		dated:    true,
		service:  func(a *App) *services.OfflineService[models.Water] { return a.Facade.Water },
		describe: func(w models.Water) string { return fmt.Sprintf("%d ml", w.AmountMl) },
	}
)

func (rt *runtime) foodCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "food", Short: "Manage foods"}

	var (
		f        models.Food
		servingG float64
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a custom food with nutrients per serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(f.Name) == "" {
				return usagef("--name is required")
			}
			f.Source = models.SourceCustom
			if servingG > 0 {
				f.Serving = models.Serving{Type: models.ServingWeight, ServingSizeG: servingG, BaseUnit: "g"}
			}
			return foods.save(cmd.Context(), rt, cmd.OutOrStdout(), 0, f)
		},
	}
	add.Flags().StringVar(&f.Name, "name", "", "food name")
	add.Flags().StringVar(&f.Brand, "brand", "", "brand")
	add.Flags().StringVar(&f.Barcode, "barcode", "", "barcode")
	add.Flags().Float64Var(&f.Macros.Kcal, "kcal", 0, "energy per serving")
	add.Flags().Float64Var(&f.Macros.Protein, "protein", 0, "protein grams per serving")
	add.Flags().Float64Var(&f.Macros.Carbs, "carbs", 0, "carbohydrate grams per serving")
	add.Flags().Float64Var(&f.Macros.Fat, "fat", 0, "fat grams per serving")
	add.Flags().Float64Var(&servingG, "serving-g", 100, "serving size in grams")

	cmd.AddCommand(add, foods.listCommand(rt), foods.removeCommand(rt))
	return cmd
}

func (rt *runtime) entryCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "entry", Short: "Manage diary entries"}

	var (
		e       models.DiaryEntry
		foodKey int64
		date    string
		meal    string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Log a portion of a food",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if e.Date, err = day(date); err != nil {
				return err
			}
			if foodKey == 0 && e.FoodID == "" {
				return usagef("one of --food or --food-id is required")
			}
			if e.Quantity.Grams <= 0 {
				return usagef("--grams must be positive")
			}
			if e.MealType, err = parseMeal(meal); err != nil {
				return err
			}
			if foodKey != 0 {
				food, err := rt.app.Facade.Foods.Get(cmd.Context(), foodKey)
				if err != nil {
					return err
				}
				if food.RemoteID != "" {
					e.FoodID = food.RemoteID
				} else {
					e.FoodLocalKey = foodKey
				}
			}
			return entries.save(cmd.Context(), rt, cmd.OutOrStdout(), 0, e)
		},
	}
	add.Flags().Int64Var(&foodKey, "food", 0, "local key of the food")
	add.Flags().StringVar(&e.FoodID, "food-id", "", "remote id of the food")
	add.Flags().Float64Var(&e.Quantity.Grams, "grams", 0, "portion size in grams")
	add.Flags().StringVar(&meal, "meal", string(models.MealSnack), "breakfast, lunch, dinner or snack")
	add.Flags().StringVar(&date, "date", "", "day of the entry (default today)")

	cmd.AddCommand(add, entries.listCommand(rt), entries.removeCommand(rt))
	return cmd
}

func (rt *runtime) weightCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "weight", Short: "Manage weight samples"}

	var (
		kg   float64
		date string
	)
	run := func(cmd *cobra.Command, key int64) error {
		d, err := day(date)
		if err != nil {
			return err
		}
		if kg <= 0 {
			return usagef("--kg must be positive")
		}
		return weights.save(cmd.Context(), rt, cmd.OutOrStdout(), key, models.Weight{Date: d, WeightKg: kg})
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Record a weight sample",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return run(cmd, 0) },
	}
	edit := &cobra.Command{
		Use:   "edit <key>",
		Short: "Change a weight sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			return run(cmd, key)
		},
	}
	for _, c := range []*cobra.Command{add, edit} {
		c.Flags().Float64Var(&kg, "kg", 0, "body weight in kilograms")
		c.Flags().StringVar(&date, "date", "", "day of the sample (default today)")
	}

	cmd.AddCommand(add, edit, weights.listCommand(rt), weights.removeCommand(rt))
	return cmd
}

func (rt *runtime) waterCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "water", Short: "Manage water intake"}

	var (
		ml   int
		date string
	)
	run := func(cmd *cobra.Command, key int64) error {
		d, err := day(date)
		if err != nil {
			return err
		}
		if ml <= 0 {
			return usagef("--ml must be positive")
		}
		return water.save(cmd.Context(), rt, cmd.OutOrStdout(), key, models.Water{Date: d, AmountMl: ml})
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Record water intake",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return run(cmd, 0) },
	}
	edit := &cobra.Command{
		Use:   "edit <key>",
		Short: "Change a water record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			return run(cmd, key)
		},
	}
	for _, c := range []*cobra.Command{add, edit} {
		c.Flags().IntVar(&ml, "ml", 0, "amount in millilitres")
		c.Flags().StringVar(&date, "date", "", "day of the record (default today)")
	}

	cmd.AddCommand(add, edit, water.listCommand(rt), water.removeCommand(rt))
	return cmd
}

func parseMeal(s string) (models.MealType, error) {
	switch m := models.MealType(strings.ToLower(strings.TrimSpace(s))); m {
	case models.MealBreakfast, models.MealLunch, models.MealDinner, models.MealSnack:
		return m, nil
	default:
		return "", usagef("invalid meal %q: want breakfast, lunch, dinner or snack", s)
	}
}
