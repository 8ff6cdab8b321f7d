package engine_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/engine"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Regression: a full batch round trip against real MySQL and Redis. A bundle
// sale must deduct component stock through DBStore, write ledger movements,
// mark the order processed, and stay inert when the same order is replayed.
func TestProcessBatch_DeductsAndStaysIdempotent(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "stocksync_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	businessId := "biz-regression"
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	mustCreateProduct(t, ctx, "CM001", "Cushion Red", models.ProductTypeSingle, "SKU-CM001")
	mustCreateProduct(t, ctx, "CM003", "Cushion Pad", models.ProductTypeSingle, "SKU-CM003")
	mustCreateProduct(t, ctx, "PC001", "Cushion Pair Set", models.ProductTypeBundleFixed, "SKU-PC001")

	if _, err := models.CreateChoiceMapping(ctx, &models.NewChoiceMapping{
		ChoiceCode: "R05",
		CommonCode: "CM001",
	}); err != nil {
		t.Fatalf("CreateChoiceMapping: %v", err)
	}
	for seq, comp := range []struct {
		code string
		qty  int64
	}{{"CM001", 1}, {"CM003", 2}} {
		_, err := models.CreateBundleComposition(ctx, &models.NewBundleComposition{
			CommonCode:      "PC001",
			Seq:             seq + 1,
			ComponentCode:   comp.code,
			QuantityPerUnit: decimal.NewFromInt(comp.qty),
		})
		if err != nil {
			t.Fatalf("CreateBundleComposition: %v", err)
		}
	}

	seedStock(t, db, businessId, "CM001", 10)
	seedStock(t, db, businessId, "CM003", 10)

	snap, err := engine.LoadMappingSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadMappingSnapshot: %v", err)
	}

	items := []models.OrderLineItem{
		{
			BusinessId:    businessId,
			Marketplace:   "shopee",
			OrderRef:      "ORD-1001",
			LineId:        "ORD-1001-1",
			Quantity:      decimal.NewFromInt(2),
			RawChoiceText: "choice: R05 red",
			Direction:     models.LineDirectionSale,
		},
		{
			BusinessId:  businessId,
			Marketplace: "shopee",
			OrderRef:    "ORD-1001",
			LineId:      "ORD-1001-2",
			Quantity:    decimal.NewFromInt(1),
			RawSku:      "SKU-PC001",
			Direction:   models.LineDirectionSale,
		},
	}

	store := engine.NewDBStore(db)
	opts := engine.BatchOptions{
		BusinessId:  businessId,
		Marketplace: "shopee",
		SyncRunId:   1,
	}

	result, err := engine.ProcessBatch(ctx, store, snap, items, opts)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if result.UnresolvedCount != 0 || result.FailedCount != 0 {
		t.Fatalf("expected clean batch, got %+v", result)
	}
	if len(result.MarkedOrders) != 1 || result.MarkedOrders[0] != "ORD-1001" {
		t.Fatalf("expected ORD-1001 marked, got %v", result.MarkedOrders)
	}

	// 2 direct CM001 + 1 from bundle = 3 off CM001; 2 off CM003.
	assertStock(t, ctx, "CM001", "7")
	assertStock(t, ctx, "CM003", "8")

	var movementCount int64
	if err := db.Model(&models.InventoryMovement{}).
		Where("business_id = ?", businessId).
		Count(&movementCount).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movementCount != 2 {
		t.Fatalf("expected 2 ledger movements, got %d", movementCount)
	}

	// Replay the same order. Markers must make the batch a no-op.
	replay, err := engine.ProcessBatch(ctx, store, snap, items, opts)
	if err != nil {
		t.Fatalf("ProcessBatch replay: %v", err)
	}
	if replay.DuplicateOrderCount != 1 {
		t.Fatalf("expected duplicate order on replay, got %+v", replay)
	}
	assertStock(t, ctx, "CM001", "7")
	assertStock(t, ctx, "CM003", "8")
}

func mustCreateProduct(t *testing.T, ctx context.Context, code, name string, pt models.ProductType, sku string) {
	t.Helper()
	_, err := models.CreateCanonicalProduct(ctx, &models.NewCanonicalProduct{
		CommonCode:  code,
		Name:        name,
		ProductType: pt,
		Sku:         sku,
	})
	if err != nil {
		t.Fatalf("CreateCanonicalProduct %s: %v", code, err)
	}
}

func seedStock(t *testing.T, db *gorm.DB, businessId, code string, qty int64) {
	t.Helper()
	record := models.InventoryRecord{
		BusinessId:   businessId,
		CommonCode:   code,
		CurrentStock: decimal.NewFromInt(qty),
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed stock %s: %v", code, err)
	}
}

func assertStock(t *testing.T, ctx context.Context, code, want string) {
	t.Helper()
	record, err := models.GetInventoryRecord(ctx, code)
	if err != nil {
		t.Fatalf("GetInventoryRecord %s: %v", code, err)
	}
	if record.CurrentStock.String() != want {
		t.Fatalf("stock %s = %s, want %s", code, record.CurrentStock.String(), want)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stocksync-test-redis-%d", time.Now().UnixNano())
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
	name := fmt.Sprintf("stocksync-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stocksync_test",
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
