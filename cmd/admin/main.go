package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"cvbuilder/internal/auth"
	"cvbuilder/internal/config"
	"cvbuilder/internal/database"
	"cvbuilder/internal/subscription"
)

func main() {
	var (
		migrate     = flag.Bool("migrate", false, "执行数据库迁移并退出")
		createAdmin = flag.Bool("create-admin", false, "创建初始管理员（需 -username）")
		username    = flag.String("username", "", "管理员用户名")
		grant       = flag.Bool("grant", false, "为用户授予套餐（需 -user 与 -plan）")
		userID      = flag.Uint("user", 0, "目标用户 id")
		plan        = flag.String("plan", "", "套餐类型：free | premium | enterprise")
		end         = flag.String("end", "", "订阅结束时间（RFC3339，可选，留空表示不限期）")
		expire      = flag.Bool("expire", false, "将已过结束时间的 active 订阅标记为 expired")
		dbHost      = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort      = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName      = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser      = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass      = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode     = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	if !*migrate && !*createAdmin && !*grant && !*expire {
		flag.Usage()
		os.Exit(2)
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	// 迁移始终执行，其他命令依赖最新表结构
	dbCfg.MigrateOnStart = true

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	ctx := context.Background()

	if *migrate {
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("unwrap db: %v", err)
		}
		version, err := database.MigrationVersion(sqlDB)
		if err != nil {
			log.Fatalf("migration version: %v", err)
		}
		fmt.Printf("数据库已迁移到版本 %d\n", version)
	}

	if *createAdmin {
		if err := runCreateAdmin(ctx, db, strings.TrimSpace(*username)); err != nil {
			log.Fatalf("create admin: %v", err)
		}
	}

	if *grant {
		if err := runGrant(ctx, db, *userID, *plan, *end); err != nil {
			log.Fatalf("grant: %v", err)
		}
	}

	if *expire {
		n, err := subscription.NewStore(db).ExpireLapsed(ctx, time.Now())
		if err != nil {
			log.Fatalf("expire: %v", err)
		}
		fmt.Printf("已将 %d 条订阅标记为 expired\n", n)
	}
}

func runCreateAdmin(ctx context.Context, db *gorm.DB, u string) error {
	if u == "" {
		return errors.New("missing required flag: -username")
	}

	var existing database.User
	switch err := db.WithContext(ctx).Where("username = ?", u).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", u)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := auth.GenerateRandomPassword(24)
	if err != nil {
		return err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user := database.User{
		Username:           u,
		PasswordHash:       hashed,
		IsAdmin:            true,
		MustChangePassword: true,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("已创建初始管理员账号（首次登录需强制改密）：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
	return nil
}

func runGrant(ctx context.Context, db *gorm.DB, userID uint, planFlag, endFlag string) error {
	if userID == 0 {
		return errors.New("missing required flag: -user")
	}
	plan, err := subscription.ParsePlanType(strings.TrimSpace(planFlag))
	if err != nil {
		return err
	}

	now := time.Now()
	var endDate *time.Time
	if s := strings.TrimSpace(endFlag); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse -end: %w", err)
		}
		if !t.After(now) {
			return errors.New("-end must be in the future")
		}
		endDate = &t
	}

	var user database.User
	if err := db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	sub, err := subscription.NewStore(db).Upsert(ctx, user.ID, plan, endDate, now)
	if err != nil {
		return err
	}
	fmt.Printf("用户 %s (id=%d) 当前套餐: %s，状态: %s\n", user.Username, user.ID, sub.PlanType, sub.Status)
	return nil
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
