package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tuneshare/internal/config"
	"tuneshare/internal/logging"
	"tuneshare/internal/services"
	"tuneshare/internal/storage"
)

const usage = `使用方法:
  ./admin show-user <userid>     - 显示用户信息
  ./admin list-friends <userid>  - 列出用户的好友
  ./admin list-pending <userid>  - 列出发给该用户的待处理好友请求
  ./admin list-blocked <userid>  - 列出该用户屏蔽的用户`

var errUsage = errors.New(usage)

func main() {
	if len(os.Args) < 3 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(os.Getenv("TUNESHARE_CONFIG"))
	if err != nil {
		logrus.Fatalf("无法加载配置: %v", err)
	}
	logging.Setup("warn", "text")

	db, closeDB, err := openDB(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB()

	if err := run(context.Background(), db, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDB 对 postgres 直接使用 lib/pq 连接，其它类型交给 storage.InitDB。
func openDB(cfg config.DatabaseConfig) (*gorm.DB, func(), error) {
	if cfg.Type != "postgres" {
		db, err := storage.InitDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil
	}

	sqlDB, err := sql.Open("postgres", storage.PostgresDSN(cfg))
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logging.GormLogger(),
		TranslateError: true,
	})
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("Failed to create GORM instance: %w", err)
	}
	return db, func() { sqlDB.Close() }, nil
}

// run 执行一条只读的管理命令，结果写到 out。
func run(ctx context.Context, db *gorm.DB, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	command, userid := args[0], args[1]

	userRepo := storage.NewGormUserRepository(db)
	user, err := userRepo.GetByUserID(ctx, userid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("用户 %s 不存在", userid)
		}
		return fmt.Errorf("查找用户失败: %w", err)
	}

	rel := services.NewRelationshipService(db, userRepo,
		storage.NewGormFriendRequestRepository(db),
		storage.NewGormFriendshipRepository(db),
		storage.NewGormBlockRepository(db),
		nil)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch command {
	case "show-user":
		fmt.Fprintf(tw, "ID:\t%d\n", user.ID)
		fmt.Fprintf(tw, "userid:\t%s\n", user.UserID)
		fmt.Fprintf(tw, "用户名:\t%s\n", user.Username)
		fmt.Fprintf(tw, "邮箱:\t%s\n", user.Email)
		fmt.Fprintf(tw, "管理员:\t%v\n", user.IsSuperuser)
		fmt.Fprintf(tw, "启用:\t%v\n", user.IsActive)
		if user.ListeningTo != nil {
			fmt.Fprintf(tw, "正在收听:\t%s\n", *user.ListeningTo)
		}
		if user.LastSeenAt != nil {
			fmt.Fprintf(tw, "最近在线:\t%s\n", user.LastSeenAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(tw, "注册时间:\t%s\n", user.CreatedAt.Format("2006-01-02 15:04:05"))

	case "list-friends":
		friends, err := rel.ListFriends(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s 的好友 (%d 人):\n", user.Username, len(friends))
		for i, f := range friends {
			listening := "-"
			if f.ListeningTo != nil {
				listening = *f.ListeningTo
			}
			fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\n", i+1, f.UserID, f.Username, listening)
		}

	case "list-pending":
		pending, err := rel.ListPendingRequests(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s 收到的待处理请求 (%d 个):\n", user.Username, len(pending))
		for _, p := range pending {
			fmt.Fprintf(tw, "请求 %d\t%s\t%s\n", p.RequestID, p.SenderUserID, p.SenderUsername)
		}

	case "list-blocked":
		blocked, err := rel.ListBlocked(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s 屏蔽的用户 (%d 人):\n", user.Username, len(blocked))
		for _, b := range blocked {
			reason := "-"
			if b.Reason != nil {
				reason = *b.Reason
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.UserID, b.Username, b.BlockedAt.Format("2006-01-02 15:04:05"), reason)
		}

	default:
		return fmt.Errorf("未知命令: %s\n%s", command, usage)
	}
	return nil
}
