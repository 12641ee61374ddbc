// cmd/initdata seeds a development database with demo carwashes and
// reservations and prints ready-to-use JWTs for one client and two owners.
// The second owner gets more carwashes than the live fan-out limit so the
// degraded view path can be exercised locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"wash-sync/internal/clients/mongo"
	"wash-sync/internal/config"
	"wash-sync/internal/logger"
	"wash-sync/internal/services/carwashes"
	"wash-sync/internal/services/reservations"
	"wash-sync/internal/services/watch"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	nReservations = flag.Int("n", envInt("COUNT", 40), "How many reservations to create per carwash owner")
	bigOwnerSize  = flag.Int("big", envInt("BIG_OWNER_CARWASHES", watch.MaxFilterIDs+2), "Carwash count for the over-limit owner")
	tokenTTL      = flag.Duration("ttl", 24*time.Hour, "Lifetime of the printed demo tokens")
)

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscan(v, &i); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func main() {
	flag.Parse()
	gofakeit.Seed(time.Now().UnixNano())

	cfg, err := config.Load()
	if err != nil {
		fatal("config load failed", err)
	}
	if _, err := logger.Init(cfg); err != nil {
		fatal("logger init failed", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, _, err := mongo.Init(ctx, cfg, logger.L()); err != nil {
		fatal("mongo init failed", err)
	}
	defer func() {
		if err := mongo.Shutdown(context.Background()); err != nil {
			logger.L().Error("mongo shutdown", "err", err)
		}
	}()

	carwashRepo, err := mongo.NewCarwashesRepo(ctx, mongo.DB())
	if err != nil {
		fatal("carwashes repo", err)
	}
	reservationRepo, err := mongo.NewReservationsRepo(ctx, mongo.DB())
	if err != nil {
		fatal("reservations repo", err)
	}

	clientID := bson.NewObjectID()
	smallOwnerID := bson.NewObjectID()
	bigOwnerID := bson.NewObjectID()

	small, err := seedOwner(ctx, carwashRepo, reservationRepo, smallOwnerID, clientID, 3, *nReservations)
	if err != nil {
		fatal("seed small owner", err)
	}
	big, err := seedOwner(ctx, carwashRepo, reservationRepo, bigOwnerID, clientID, *bigOwnerSize, *nReservations)
	if err != nil {
		fatal("seed big owner", err)
	}

	fmt.Printf("seeded %d + %d carwashes, %d reservations total\n",
		small, big, 2*(*nReservations))

	printToken(cfg, "client", clientID, "client")
	printToken(cfg, "owner (live view)", smallOwnerID, "owner")
	printToken(cfg, "owner (degraded view)", bigOwnerID, "owner")
}

// seedOwner creates count carwashes for ownerID plus nRes reservations spread
// across them, mixing statuses so both badges have something to count.
func seedOwner(ctx context.Context, cwRepo *mongo.CarwashesRepo, resRepo *mongo.ReservationsRepo,
	ownerID, clientID bson.ObjectID, count, nRes int) (int, error) {

	ids := make([]bson.ObjectID, 0, count)
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		cw := &carwashes.Carwash{
			ID:      bson.NewObjectID(),
			OwnerID: ownerID,
			Name:    "Lavage " + gofakeit.LastName(),
			Address: gofakeit.Street() + ", " + gofakeit.City(),
		}
		if err := cwRepo.Create(ctx, cw); err != nil {
			return 0, err
		}
		ids = append(ids, cw.ID)
		names = append(names, cw.Name)
	}

	statuses := []reservations.Status{
		reservations.StatusPending,
		reservations.StatusConfirmed,
		reservations.StatusCanceled,
	}
	services := []string{"Lavage complet", "Lavage extérieur", "Nettoyage intérieur", "Polissage"}

	for i := 0; i < nRes; i++ {
		slot := gofakeit.DateRange(time.Now(), time.Now().AddDate(0, 1, 0))
		k := i % len(ids)
		r := &reservations.Reservation{
			ID:             bson.NewObjectID(),
			ClientID:       clientID,
			OwnerID:        ownerID,
			CarwashID:      ids[k],
			CarwashName:    names[k],
			ServiceID:      gofakeit.UUID(),
			ServiceName:    services[i%len(services)],
			Price:          float64(gofakeit.Number(500, 3000)),
			Date:           slot.Format("02/01/2006"),
			Time:           slot.Format("15:04"),
			ClientPhone:    gofakeit.Phone(),
			ClientAddress:  gofakeit.Street() + ", " + gofakeit.City(),
			Status:         statuses[i%len(statuses)],
			IsSeenByClient: i%2 == 0,
		}
		if err := resRepo.Create(ctx, r); err != nil {
			return 0, err
		}
	}

	return count, nil
}

func printToken(cfg config.Config, label string, userID bson.ObjectID, role string) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.Hex(),
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(*tokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fatal("sign token", err)
	}
	fmt.Printf("%-22s %s\n  %s\n", label, userID.Hex(), signed)
}

func fatal(msg string, err error) {
	fmt.Fprintln(os.Stderr, "FATAL:", msg+":", err.Error())
	os.Exit(1)
}
