package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/fleet-approval/internal/auth"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
	"github.com/frahmantamala/fleet-approval/pkg/logger"
)

const seedPassword = "password"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed one active user per role and a small fleet for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gdb, err := database.OpenGorm(db.DB, lg)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		hash, err := auth.HashPassword(seedPassword, cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		ctx := context.Background()
		err = database.NewTransactionManager(gdb).RunInTx(ctx, func(txCtx context.Context) error {
			tx := database.GetDB(txCtx, gdb)
			if clearData {
				if err := clearSeedData(tx); err != nil {
					return err
				}
				fmt.Println("Cleared existing data")
			}
			return seed(tx, hash)
		})
		if err != nil {
			log.Fatalf("failed to seed: %v", err)
		}
		fmt.Printf("Seed complete. Every account uses the password %q\n", seedPassword)
	},
}

type seedUser struct {
	Email      string
	FullName   string
	Role       approval.Role
	Department string
	Phone      string
}

var seedUsers = []seedUser{
	{"employee@fleet.local", "Erin Employee", approval.RoleEmployee, "Engineering", "09120000001"},
	{"passenger@fleet.local", "Pat Passenger", approval.RoleEmployee, "Engineering", "09120000002"},
	{"dm@fleet.local", "Dana Manager", approval.RoleDepartmentManager, "Engineering", "09120000003"},
	{"tm@fleet.local", "Toni Transport", approval.RoleTransportManager, "", "09120000004"},
	{"fm@fleet.local", "Frank Finance", approval.RoleFinanceManager, "", "09120000005"},
	{"ceo@fleet.local", "Casey Chief", approval.RoleCEO, "", "09120000006"},
	{"gs@fleet.local", "Gale Systems", approval.RoleGeneralSystem, "", "09120000007"},
	{"bm@fleet.local", "Blair Budget", approval.RoleBudgetManager, "", "09120000008"},
	{"admin@fleet.local", "Sam Admin", approval.RoleSystemAdmin, "", "09120000009"},
	{"driver1@fleet.local", "Drew Driver", approval.RoleDriver, "", "09120000010"},
	{"driver2@fleet.local", "Devon Driver", approval.RoleDriver, "", "09120000011"},
}

type seedVehicle struct {
	Plate       string
	Model       string
	Capacity    int
	Source      vehicle.Source
	Rental      string
	Fuel        vehicle.FuelType
	Efficiency  string
	DriverEmail string
}

var seedVehicles = []seedVehicle{
	{"12A345-11", "Toyota Hiace", 12, vehicle.SourceOrganization, "", vehicle.FuelBenzene, "8.50", "driver1@fleet.local"},
	{"34B678-22", "Hyundai Sonata", 4, vehicle.SourceOrganization, "", vehicle.FuelBenzene, "12.00", "driver2@fleet.local"},
	{"56C901-33", "Mercedes Sprinter", 16, vehicle.SourceRented, "City Rentals", vehicle.FuelNaphtha, "7.25", ""},
}

func seed(tx *gorm.DB, passwordHash string) error {
	ids := make(map[string]int64, len(seedUsers))
	for _, su := range seedUsers {
		u := user.User{
			Email:        su.Email,
			FullName:     su.FullName,
			PasswordHash: passwordHash,
			Role:         su.Role,
			Department:   su.Department,
			PhoneNumber:  su.Phone,
			IsActive:     true,
		}
		res := tx.Where(user.User{Email: su.Email}).FirstOrCreate(&u)
		if res.Error != nil {
			return fmt.Errorf("seed user %s: %w", su.Email, res.Error)
		}
		if res.RowsAffected > 0 {
			fmt.Println("Seeded user:", su.Email, su.Role)
		}
		ids[su.Email] = u.ID
	}

	for _, sv := range seedVehicles {
		v := vehicle.Vehicle{
			LicensePlate:   sv.Plate,
			Model:          sv.Model,
			Capacity:       sv.Capacity,
			Source:         sv.Source,
			RentalCompany:  sv.Rental,
			FuelType:       sv.Fuel,
			FuelEfficiency: decimal.RequireFromString(sv.Efficiency),
			Status:         vehicle.StatusAvailable,
			IsActive:       true,
		}
		if sv.DriverEmail != "" {
			id := ids[sv.DriverEmail]
			v.DriverID = &id
		}
		res := tx.Where(vehicle.Vehicle{LicensePlate: sv.Plate}).FirstOrCreate(&v)
		if res.Error != nil {
			return fmt.Errorf("seed vehicle %s: %w", sv.Plate, res.Error)
		}
		if res.RowsAffected > 0 {
			fmt.Println("Seeded vehicle:", sv.Plate)
		}
	}
	return nil
}

// clearSeedData empties every table in reverse dependency order.
func clearSeedData(tx *gorm.DB) error {
	tables := []string{
		"otp_codes",
		"notifications",
		"audit_entries",
		"transport_request_passengers",
		"highcost_request_passengers",
		"transport_requests",
		"highcost_requests",
		"maintenance_requests",
		"refueling_requests",
		"service_requests",
		"monthly_kilometer_logs",
		"vehicles",
		"users",
	}
	for _, t := range tables {
		if err := tx.Exec("TRUNCATE TABLE " + t + " RESTART IDENTITY CASCADE").Error; err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	return nil
}
