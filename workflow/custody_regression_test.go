package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/isp_backend/config"
	"github.com/mmdatafocus/isp_backend/models"
	"github.com/mmdatafocus/isp_backend/utils"
	"github.com/mmdatafocus/isp_backend/workflow"
	"github.com/shopspring/decimal"
)

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "isp_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func TestCheckoutReturnLifecycle(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	logger := config.GetLogger()

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	patchCord, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:      "Patch Cord",
		Category:  "consumable",
		UnitPrice: decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	technician, err := models.CreateTechnician(ctx, &models.NewTechnician{Name: "Aung Aung", EmployeeId: 1})
	if err != nil {
		t.Fatalf("CreateTechnician: %v", err)
	}
	if _, err := models.ReceiveStock(ctx, patchCord.ID, warehouse.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("ReceiveStock: %v", err)
	}

	// Checkout 10 -> available drops, debt opens.
	checkout, err := workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: patchCord.ID, Qty: decimal.NewFromInt(10)},
		},
	})
	if err != nil {
		t.Fatalf("ProcessCheckout: %v", err)
	}
	if len(checkout.DebtLines) != 1 {
		t.Fatalf("expected 1 debt line, got %d", len(checkout.DebtLines))
	}
	line := checkout.DebtLines[0]
	if line.CurrentDebtQty.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("expected debt qty 10, got %s", line.CurrentDebtQty)
	}
	if checkout.TotalValue.Cmp(decimal.NewFromInt(15000)) != 0 {
		t.Fatalf("expected checkout value 15000, got %s", checkout.TotalValue)
	}

	counter, err := models.GetStockCounter(ctx, patchCord.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("GetStockCounter: %v", err)
	}
	if counter.AvailableQty.Cmp(decimal.NewFromInt(90)) != 0 {
		t.Fatalf("expected available 90, got %s", counter.AvailableQty)
	}

	// Return 4 -> available back to 94, line partially returned.
	returned, err := workflow.ProcessReturn(ctx, logger, &workflow.NewReturn{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewReturnLine{
			{DebtLineId: line.ID, Qty: decimal.NewFromInt(4)},
		},
	})
	if err != nil {
		t.Fatalf("ProcessReturn: %v", err)
	}
	if returned[0].CurrentDebtQty.Cmp(decimal.NewFromInt(6)) != 0 {
		t.Fatalf("expected debt qty 6, got %s", returned[0].CurrentDebtQty)
	}
	if returned[0].Status != models.DebtLineStatusPartiallyReturned {
		t.Fatalf("expected partially_returned, got %s", returned[0].Status)
	}
	counter, _ = models.GetStockCounter(ctx, patchCord.ID, warehouse.ID)
	if counter.AvailableQty.Cmp(decimal.NewFromInt(94)) != 0 {
		t.Fatalf("expected available 94, got %s", counter.AvailableQty)
	}

	// Returning more than outstanding is rejected.
	_, err = workflow.ProcessReturn(ctx, logger, &workflow.NewReturn{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewReturnLine{
			{DebtLineId: line.ID, Qty: decimal.NewFromInt(7)},
		},
	})
	if !errors.Is(err, utils.ErrInsufficientDebtBalance) {
		t.Fatalf("expected ErrInsufficientDebtBalance, got %v", err)
	}

	// Asking for more than available fails and leaves no trace.
	_, err = workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: patchCord.ID, Qty: decimal.NewFromInt(95)},
		},
	})
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	counter, _ = models.GetStockCounter(ctx, patchCord.ID, warehouse.ID)
	if counter.AvailableQty.Cmp(decimal.NewFromInt(94)) != 0 {
		t.Fatalf("failed checkout must not change stock; available = %s", counter.AvailableQty)
	}
	lines, err := models.GetTechnicianDebtLines(ctx, technician.ID, false)
	if err != nil {
		t.Fatalf("GetTechnicianDebtLines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("failed checkout must not create debt lines; got %d", len(lines))
	}
}

func TestTerminalUnitRejectsTransitions(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	logger := config.GetLogger()

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	ont, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:                  "ONT",
		UnitPrice:             decimal.NewFromInt(45000),
		TracksIndividualUnits: utils.NewTrue(),
	})
	if err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	technician, err := models.CreateTechnician(ctx, &models.NewTechnician{Name: "Zaw Zaw", EmployeeId: 5})
	if err != nil {
		t.Fatalf("CreateTechnician: %v", err)
	}
	units, err := models.ReceiveTrackedUnits(ctx, &models.NewTrackedUnitReceipt{
		AssetTypeId: ont.ID,
		WarehouseId: warehouse.ID,
		Units:       []models.NewTrackedUnit{{SerialNumber: "ONT00000001"}},
	})
	if err != nil {
		t.Fatalf("ReceiveTrackedUnits: %v", err)
	}
	unit := units[0]

	checkout, err := workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: ont.ID, TrackedUnitId: unit.ID},
		},
	})
	if err != nil {
		t.Fatalf("ProcessCheckout: %v", err)
	}

	// Returned as lost: the line settles and the unit goes terminal.
	_, err = workflow.ProcessReturn(ctx, logger, &workflow.NewReturn{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewReturnLine{
			{DebtLineId: checkout.DebtLines[0].ID, Disposition: models.UnitStatusLost},
		},
	})
	if err != nil {
		t.Fatalf("ProcessReturn: %v", err)
	}
	lost, _ := models.GetTrackedUnit(ctx, unit.ID)
	if lost.Status != models.UnitStatusLost {
		t.Fatalf("expected lost, got %s", lost.Status)
	}

	// Terminal units accept no further custody operations.
	_, err = workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: ont.ID, TrackedUnitId: unit.ID},
		},
	})
	if !errors.Is(err, utils.ErrUnitNotAvailable) {
		t.Fatalf("expected ErrUnitNotAvailable, got %v", err)
	}
	unchanged, _ := models.GetTrackedUnit(ctx, unit.ID)
	if unchanged.Status != models.UnitStatusLost {
		t.Fatalf("failed checkout must not move a terminal unit; got %s", unchanged.Status)
	}
}

func TestCableCheckoutInstallLifecycle(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	logger := config.GetLogger()

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	cable, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:                  "Drop Cable",
		Category:              "cable",
		UnitPrice:             decimal.NewFromInt(80000),
		TracksIndividualUnits: utils.NewTrue(),
		IsLengthBased:         utils.NewTrue(),
		StandardUnitLength:    decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	technician, err := models.CreateTechnician(ctx, &models.NewTechnician{Name: "Mya Mya", EmployeeId: 2})
	if err != nil {
		t.Fatalf("CreateTechnician: %v", err)
	}

	units, err := models.ReceiveTrackedUnits(ctx, &models.NewTrackedUnitReceipt{
		AssetTypeId: cable.ID,
		WarehouseId: warehouse.ID,
		Units:       []models.NewTrackedUnit{{SerialNumber: "DRUM-000001", InitialLength: decimal.NewFromInt(1000)}},
	})
	if err != nil {
		t.Fatalf("ReceiveTrackedUnits: %v", err)
	}
	drum := units[0]

	checkout, err := workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: cable.ID, TrackedUnitId: drum.ID},
		},
	})
	if err != nil {
		t.Fatalf("ProcessCheckout: %v", err)
	}
	line := checkout.DebtLines[0]

	loaned, err := models.GetTrackedUnit(ctx, drum.ID)
	if err != nil {
		t.Fatalf("GetTrackedUnit: %v", err)
	}
	if loaned.Status != models.UnitStatusLoaned {
		t.Fatalf("expected loaned, got %s", loaned.Status)
	}
	if loaned.WarehouseId != nil {
		t.Fatalf("loaned unit should leave the warehouse")
	}

	// Install 300m -> record pro-rated at 300/1000 of the drum price.
	record, err := workflow.ProcessInstallation(ctx, logger, &workflow.NewInstallation{
		TechnicianId:    technician.ID,
		DebtLineId:      line.ID,
		CustomerId:      42,
		TicketId:        7,
		LengthInstalled: decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatalf("ProcessInstallation: %v", err)
	}
	if record.ValueAtInstall.Cmp(decimal.NewFromInt(24000)) != 0 {
		t.Fatalf("expected install value 24000, got %s", record.ValueAtInstall)
	}
	if record.LengthInstalled.Cmp(decimal.NewFromInt(300)) != 0 {
		t.Fatalf("expected length 300, got %s", record.LengthInstalled)
	}

	installed, _ := models.GetTrackedUnit(ctx, drum.ID)
	if installed.Status != models.UnitStatusInstalled {
		t.Fatalf("expected installed, got %s", installed.Status)
	}
	if installed.CurrentLength.Cmp(decimal.NewFromInt(700)) != 0 {
		t.Fatalf("expected remaining length 700, got %s", installed.CurrentLength)
	}

	// Exactly one audit record explains the length change.
	lengthChanges, err := models.GetUnitLengthChanges(ctx, drum.ID)
	if err != nil {
		t.Fatalf("GetUnitLengthChanges: %v", err)
	}
	if len(lengthChanges) != 1 {
		t.Fatalf("expected 1 length change, got %d", len(lengthChanges))
	}
	if lengthChanges[0].Delta.Cmp(decimal.NewFromInt(-300)) != 0 {
		t.Fatalf("expected delta -300, got %s", lengthChanges[0].Delta)
	}

	// The debt line is fully discharged.
	discharged, err := models.GetDebtLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("GetDebtLine: %v", err)
	}
	if discharged.Status != models.DebtLineStatusFullySettled {
		t.Fatalf("expected fully_settled, got %s", discharged.Status)
	}

	// Terminal-adjacent: an installed unit cannot be checked out again.
	_, err = workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: cable.ID, TrackedUnitId: drum.ID},
		},
	})
	if !errors.Is(err, utils.ErrUnitNotAvailable) {
		t.Fatalf("expected ErrUnitNotAvailable, got %v", err)
	}
}

func TestSettlementClosesDebt(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	logger := config.GetLogger()

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	patchCord, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:      "Patch Cord",
		UnitPrice: decimal.NewFromInt(50000),
	})
	if err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	technician, err := models.CreateTechnician(ctx, &models.NewTechnician{Name: "Ko Ko", EmployeeId: 3})
	if err != nil {
		t.Fatalf("CreateTechnician: %v", err)
	}
	if _, err := models.ReceiveStock(ctx, patchCord.ID, warehouse.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("ReceiveStock: %v", err)
	}

	checkout, err := workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: patchCord.ID, Qty: decimal.NewFromInt(10)},
		},
	})
	if err != nil {
		t.Fatalf("ProcessCheckout: %v", err)
	}
	lineIds := []int{checkout.DebtLines[0].ID}

	// Overpayment is rejected before anything mutates.
	_, err = workflow.ProcessSettlement(ctx, logger, &workflow.NewSettlement{
		TechnicianId:    technician.ID,
		DebtLineIds:     lineIds,
		Type:            models.SettlementTypeAdhoc,
		SalaryDeduction: decimal.NewFromInt(600000),
	})
	if !errors.Is(err, utils.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	// Full payoff: 300k salary + 200k cash against 500k of debt.
	settlement, err := workflow.ProcessSettlement(ctx, logger, &workflow.NewSettlement{
		TechnicianId:    technician.ID,
		DebtLineIds:     lineIds,
		Type:            models.SettlementTypeMonthly,
		SalaryDeduction: decimal.NewFromInt(300000),
		CashPayment:     decimal.NewFromInt(200000),
	})
	if err != nil {
		t.Fatalf("ProcessSettlement: %v", err)
	}
	if settlement.RemainingDebt.Cmp(decimal.Zero) != 0 {
		t.Fatalf("expected remaining debt 0, got %s", settlement.RemainingDebt)
	}
	if settlement.Status != models.SettlementStatusCompleted {
		t.Fatalf("expected completed, got %s", settlement.Status)
	}
	if len(settlement.Items) != 1 {
		t.Fatalf("expected 1 settlement item, got %d", len(settlement.Items))
	}

	line, err := models.GetDebtLine(ctx, lineIds[0])
	if err != nil {
		t.Fatalf("GetDebtLine: %v", err)
	}
	if line.Status != models.DebtLineStatusFullySettled {
		t.Fatalf("expected fully_settled, got %s", line.Status)
	}

	total, err := models.GetTechnicianDebtTotal(ctx, technician.ID)
	if err != nil {
		t.Fatalf("GetTechnicianDebtTotal: %v", err)
	}
	if total.Cmp(decimal.Zero) != 0 {
		t.Fatalf("expected open debt 0, got %s", total)
	}

	// A settled line accepts no further settlements.
	_, err = workflow.ProcessSettlement(ctx, logger, &workflow.NewSettlement{
		TechnicianId:    technician.ID,
		DebtLineIds:     lineIds,
		Type:            models.SettlementTypeAdhoc,
		CashPayment:     decimal.NewFromInt(1000),
	})
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	logger := config.GetLogger()

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	patchCord, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:      "Patch Cord",
		UnitPrice: decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	if _, err := models.ReceiveStock(ctx, patchCord.ID, warehouse.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("ReceiveStock: %v", err)
	}

	technicians := make([]*models.Technician, 5)
	for i := range technicians {
		technicians[i], err = models.CreateTechnician(ctx, &models.NewTechnician{
			Name:       fmt.Sprintf("Tech %d", i+1),
			EmployeeId: i + 10,
		})
		if err != nil {
			t.Fatalf("CreateTechnician: %v", err)
		}
	}

	// 5 technicians race for 10 units, 3 each: exactly 3 can win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, technician := range technicians {
		wg.Add(1)
		go func(techId int) {
			defer wg.Done()
			_, err := workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
				TechnicianId: techId,
				WarehouseId:  warehouse.ID,
				Lines: []workflow.NewCheckoutLine{
					{AssetTypeId: patchCord.ID, Qty: decimal.NewFromInt(3)},
				},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if !errors.Is(err, utils.ErrInsufficientStock) {
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(technician.ID)
	}
	wg.Wait()

	if successes != 3 {
		t.Fatalf("expected exactly 3 successful checkouts, got %d", successes)
	}

	counter, err := models.GetStockCounter(ctx, patchCord.ID, warehouse.ID)
	if err != nil {
		t.Fatalf("GetStockCounter: %v", err)
	}
	if counter.AvailableQty.Cmp(decimal.NewFromInt(1)) != 0 {
		t.Fatalf("expected available 1, got %s", counter.AvailableQty)
	}
	if counter.AvailableQty.IsNegative() {
		t.Fatalf("available quantity went negative: %s", counter.AvailableQty)
	}
}

func TestDebtCeilingSoftGate(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	logger := config.GetLogger()

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	router, err := models.CreateAssetType(ctx, &models.NewAssetType{
		Name:      "Router",
		UnitPrice: decimal.NewFromInt(100000),
	})
	if err != nil {
		t.Fatalf("CreateAssetType: %v", err)
	}
	technician, err := models.CreateTechnician(ctx, &models.NewTechnician{
		Name:        "Su Su",
		EmployeeId:  4,
		DebtCeiling: decimal.NewFromInt(250000),
	})
	if err != nil {
		t.Fatalf("CreateTechnician: %v", err)
	}
	if _, err := models.ReceiveStock(ctx, router.ID, warehouse.ID, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("ReceiveStock: %v", err)
	}

	// 300k against a 250k ceiling: flagged but never blocked.
	checkout, err := workflow.ProcessCheckout(ctx, logger, &workflow.NewCheckout{
		TechnicianId: technician.ID,
		WarehouseId:  warehouse.ID,
		Lines: []workflow.NewCheckoutLine{
			{AssetTypeId: router.ID, Qty: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("ProcessCheckout: %v", err)
	}
	if checkout.ExceedsLimit == nil || !*checkout.ExceedsLimit {
		t.Fatalf("expected checkout to be flagged over the ceiling")
	}

	flagged, err := models.GetUnapprovedFlaggedCheckouts(ctx)
	if err != nil {
		t.Fatalf("GetUnapprovedFlaggedCheckouts: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != checkout.ID {
		t.Fatalf("expected checkout %d in the unapproved list", checkout.ID)
	}

	approved, err := workflow.ApproveCheckout(ctx, checkout.ID, "Supervisor")
	if err != nil {
		t.Fatalf("ApproveCheckout: %v", err)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != "Supervisor" {
		t.Fatalf("expected approver to be recorded")
	}

	flagged, _ = models.GetUnapprovedFlaggedCheckouts(ctx)
	if len(flagged) != 0 {
		t.Fatalf("expected no unapproved checkouts after approval, got %d", len(flagged))
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("isp-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("isp-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=isp_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
