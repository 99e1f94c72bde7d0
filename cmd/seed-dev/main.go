package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/models"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/shopspring/decimal"
)

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func main() {
	// Env-first, flags override env for convenience.
	defaultWarehouses := getenvInt("SEED_WAREHOUSE_COUNT", 2)
	defaultTechnicians := getenvInt("SEED_TECHNICIAN_COUNT", 5)
	defaultUnits := getenvInt("SEED_UNIT_COUNT", 10)

	warehouseCount := flag.Int("warehouses", defaultWarehouses, "How many warehouses to seed")
	technicianCount := flag.Int("technicians", defaultTechnicians, "How many technicians to seed")
	unitCount := flag.Int("units", defaultUnits, "How many tracked units per tracked asset type per warehouse")
	seed := flag.Int64("seed", 0, "Deterministic fake-data seed (0 = random)")
	flag.Parse()

	if *seed != 0 {
		if err := gofakeit.Seed(*seed); err != nil {
			fmt.Fprintln(os.Stderr, "seed fake data: "+err.Error())
			os.Exit(1)
		}
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	actorUserName := getenv("SEED_ACTOR_USER_NAME", "Seed")
	ctx = utils.SetUserNameInContext(ctx, actorUserName)

	warehouses := make([]*models.Warehouse, 0, *warehouseCount)
	for i := 0; i < *warehouseCount; i++ {
		w, err := models.CreateWarehouse(ctx, &models.NewWarehouse{
			Name:     fmt.Sprintf("%s Warehouse", gofakeit.City()),
			OfficeId: i + 1,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "create warehouse: "+err.Error())
			os.Exit(1)
		}
		warehouses = append(warehouses, w)
	}

	patchCord, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:      "Patch Cord 3m",
		Category:  "consumable",
		UnitPrice: decimal.NewFromInt(1500),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "create asset type: "+err.Error())
		os.Exit(1)
	}
	ont, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:                  "ONT GPON",
		Category:              "cpe",
		UnitPrice:             decimal.NewFromInt(45000),
		TracksIndividualUnits: utils.NewTrue(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "create asset type: "+err.Error())
		os.Exit(1)
	}
	cable, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:                  "Drop Cable 1-core",
		Category:              "cable",
		UnitPrice:             decimal.NewFromInt(80000),
		TracksIndividualUnits: utils.NewTrue(),
		IsLengthBased:         utils.NewTrue(),
		StandardUnitLength:    decimal.NewFromInt(1000),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "create asset type: "+err.Error())
		os.Exit(1)
	}

	for i := 0; i < *technicianCount; i++ {
		if _, err := models.CreateTechnician(ctx, &models.NewTechnician{
			EmployeeId:  i + 1,
			Name:        gofakeit.Name(),
			DebtCeiling: decimal.NewFromInt(int64(gofakeit.Number(200_000, 800_000))),
		}); err != nil {
			fmt.Fprintln(os.Stderr, "create technician: "+err.Error())
			os.Exit(1)
		}
	}

	for _, w := range warehouses {
		if _, err := models.ReceiveStock(ctx, patchCord.ID, w.ID, decimal.NewFromInt(int64(gofakeit.Number(100, 500)))); err != nil {
			fmt.Fprintln(os.Stderr, "receive stock: "+err.Error())
			os.Exit(1)
		}

		ontUnits := make([]models.NewTrackedUnit, 0, *unitCount)
		for i := 0; i < *unitCount; i++ {
			ontUnits = append(ontUnits, models.NewTrackedUnit{
				SerialNumber: strings.ToUpper(gofakeit.LetterN(4)) + gofakeit.DigitN(8),
				MacAddress:   gofakeit.MacAddress(),
			})
		}
		if _, err := models.ReceiveTrackedUnits(ctx, &models.NewTrackedUnitReceipt{
			AssetTypeId: ont.ID,
			WarehouseId: w.ID,
			Units:       ontUnits,
		}); err != nil {
			fmt.Fprintln(os.Stderr, "receive units: "+err.Error())
			os.Exit(1)
		}

		cableUnits := make([]models.NewTrackedUnit, 0, *unitCount)
		for i := 0; i < *unitCount; i++ {
			cableUnits = append(cableUnits, models.NewTrackedUnit{
				SerialNumber:  "DRUM-" + gofakeit.DigitN(6),
				InitialLength: decimal.NewFromInt(1000),
			})
		}
		created, err := models.ReceiveTrackedUnits(ctx, &models.NewTrackedUnitReceipt{
			AssetTypeId: cable.ID,
			WarehouseId: w.ID,
			Units:       cableUnits,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "receive units: "+err.Error())
			os.Exit(1)
		}
		for _, u := range created {
			if _, err := models.AssignUnitIdentifier(ctx, u.ID); err != nil {
				fmt.Fprintln(os.Stderr, "assign identifier: "+err.Error())
				os.Exit(1)
			}
		}
	}

	fmt.Printf("seeded %d warehouses, %d technicians, 3 asset types\n", len(warehouses), *technicianCount)
}
