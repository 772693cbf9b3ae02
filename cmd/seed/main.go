package main

import (
	"context"
	"log"
	"os"
	"time"

	"haven-backend/internal/auth"
	"haven-backend/internal/config"
	"haven-backend/internal/db"
	"haven-backend/internal/models"
	"haven-backend/internal/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Fatal(err)
	}

	settingsService := settings.New(cols.Settings)
	if err := seedSchedule(ctx, settingsService); err != nil {
		log.Fatalf("seed schedule error: %v", err)
	}

	if err := seedSpecialDates(ctx, cols, cfg.Timezone); err != nil {
		log.Fatalf("seed special dates error: %v", err)
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Printf("seed admin: ADMIN_PASSWORD missing, skipping")
	} else {
		username := envOrDefault("ADMIN_USER", "admin")
		email := envOrDefault("ADMIN_EMAIL", "")
		if err := seedAdminUser(ctx, cols, username, email, password, cfg.Timezone); err != nil {
			log.Fatalf("seed admin error for %s: %v", username, err)
		}
	}

	log.Println("seed completed")
}

// seedSchedule writes the default weekly schedule only when no schedule
// settings exist yet; it never overwrites operator changes.
func seedSchedule(ctx context.Context, svc *settings.Service) error {
	var existing []int
	found, err := svc.Get(ctx, settings.KeyWorkingDays, &existing)
	if err != nil {
		return err
	}
	if found {
		log.Println("seed schedule: settings present, skipping")
		return nil
	}
	return svc.UpdateSchedule(ctx, settings.DefaultSchedule())
}

func seedSpecialDates(ctx context.Context, cols *db.Collections, loc *time.Location) error {
	now := time.Now().In(loc)
	demo := []models.SpecialDate{
		{
			Date:      now.AddDate(0, 1, 0).Format("2006-01-02"),
			Type:      models.SpecialDateHoliday,
			Available: false,
			Notes:     "Clinic closed",
		},
		{
			Date:      nextWeekday(now, time.Saturday).Format("2006-01-02"),
			Type:      models.SpecialDateCustomHours,
			Available: true,
			StartTime: "10:00",
			EndTime:   "14:00",
			Notes:     "Saturday morning hours",
		},
	}

	for _, sd := range demo {
		filter := bson.M{"_id": sd.Date}
		update := bson.M{
			"$setOnInsert": bson.M{
				"type":       sd.Type,
				"available":  sd.Available,
				"start_time": sd.StartTime,
				"end_time":   sd.EndTime,
				"notes":      sd.Notes,
				"created_at": now,
			},
		}
		if _, err := cols.SpecialDates.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return err
		}
	}
	return nil
}

func seedAdminUser(ctx context.Context, cols *db.Collections, username, email, password string, loc *time.Location) error {
	if cols == nil || cols.Users == nil {
		return nil
	}
	if username == "" || password == "" {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	now := time.Now().In(loc)
	filter := bson.M{"username": username}
	set := bson.M{
		"password_hash": hash,
		"role":          models.UserRoleAdmin,
		"updated_at":    now,
	}
	if email != "" {
		set["email"] = email
	}
	setOnInsert := bson.M{
		"_id":        primitive.NewObjectID().Hex(),
		"username":   username,
		"created_at": now,
	}

	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}
	_, err = cols.Users.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func nextWeekday(from time.Time, day time.Weekday) time.Time {
	offset := (int(day) - int(from.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return from.AddDate(0, 0, offset)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
