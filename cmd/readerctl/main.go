package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"

	"canteen-rfid/internal/adapters/repo"
	"canteen-rfid/internal/domain"
	"canteen-rfid/internal/infra/config"
	"canteen-rfid/internal/infra/log"
	"canteen-rfid/internal/usecase/mealrules"
	"canteen-rfid/internal/usecase/readers"
	"canteen-rfid/internal/usecase/stamps"
)

const usage = `readerctl — администрирование ридеров столовой.

Подключение к БД берётся из тех же переменных окружения, что и у api
(DB_DRIVER, PG_DSN, SQLITE_PATH, TZ).

Команды:
  reader add --id R1 [--name ...] [--location ...]   зарегистрировать ридер и выдать ключ
  reader rotate-key --id R1                           выпустить новый ключ
  reader list                                         список ридеров и время последнего контакта
  user add --first ... --last ... --personnel-no ... [--uid ...]
  rules seed                                          создать правила по умолчанию, если их нет
  recalculate --from 2025-03-01 --to 2025-03-31       пересчитать типы питания отметок
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}

	cfg := config.Load()
	logger := log.NewConsoleLogger(cfg.AppEnv)
	loc, err := config.LoadLocation(cfg.TZ)
	if err != nil {
		return fmt.Errorf("TZ %q: %w", cfg.TZ, err)
	}
	ctx := context.Background()
	store, err := repo.Open(ctx, cfg.DB.Driver, cfg.PGDSN, cfg.DB.SQLitePath, loc)
	if err != nil {
		return err
	}
	defer store.Close()

	cmd := strings.Join(args[:min(2, len(args))], " ")
	switch {
	case cmd == "reader add":
		return readerAdd(ctx, store, args[2:])
	case cmd == "reader rotate-key":
		return readerRotate(ctx, store, args[2:])
	case cmd == "reader list":
		return readerList(ctx, store, cfg.Readers.OnlineThreshold)
	case cmd == "user add":
		return userAdd(ctx, store, args[2:])
	case cmd == "rules seed":
		n, err := mealrules.SeedDefaults(ctx, store)
		if err != nil {
			return err
		}
		logger.Info().Int("created", n).Msg("правила питания")
		return nil
	case args[0] == "recalculate":
		svc := stamps.NewService(store, store, store, store, loc, stamps.WithLogger(logger))
		return recalculate(ctx, svc, loc, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("неизвестная команда %q", cmd)
	}
}

func readerAdd(ctx context.Context, store domain.ReaderRepo, args []string) error {
	var reader domain.Reader
	flagSet := pflag.NewFlagSet("reader add", pflag.ContinueOnError)
	flagSet.StringVar(&reader.ReaderID, "id", "", "идентификатор ридера")
	flagSet.StringVar(&reader.Name, "name", "", "название")
	flagSet.StringVar(&reader.Location, "location", "", "расположение")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	created, key, err := readers.Register(ctx, store, reader)
	if err != nil {
		return err
	}
	fmt.Printf("ридер %s создан\nключ API (показывается один раз): %s\n", created.ReaderID, key)
	return nil
}

func readerRotate(ctx context.Context, store domain.ReaderRepo, args []string) error {
	var readerID string
	flagSet := pflag.NewFlagSet("reader rotate-key", pflag.ContinueOnError)
	flagSet.StringVar(&readerID, "id", "", "идентификатор ридера")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if readerID == "" {
		return errors.New("--id is required")
	}
	key, err := readers.RotateKey(ctx, store, readerID)
	if err != nil {
		return err
	}
	fmt.Printf("новый ключ API для %s: %s\n", readerID, key)
	return nil
}

func readerList(ctx context.Context, store domain.ReaderRepo, threshold time.Duration) error {
	list, err := store.ListReaders(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "READER\tNAME\tLOCATION\tACTIVE\tONLINE\tLAST SEEN (UTC)")
	for _, r := range list {
		lastSeen := "-"
		if r.LastPingUTC != nil {
			lastSeen = r.LastPingUTC.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n", r.ReaderID, r.Name, r.Location, r.IsActive, r.IsOnline(now, threshold), lastSeen)
	}
	return w.Flush()
}

func userAdd(ctx context.Context, store domain.UserRepo, args []string) error {
	user := domain.User{IsActive: true}
	flagSet := pflag.NewFlagSet("user add", pflag.ContinueOnError)
	flagSet.StringVar(&user.FirstName, "first", "", "имя")
	flagSet.StringVar(&user.LastName, "last", "", "фамилия")
	flagSet.StringVar(&user.PersonnelNo, "personnel-no", "", "табельный номер")
	flagSet.StringVar(&user.UID, "uid", "", "идентификатор метки")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if user.FirstName == "" || user.LastName == "" || user.PersonnelNo == "" {
		return errors.New("--first, --last и --personnel-no обязательны")
	}
	user.UID = strings.TrimSpace(user.UID)
	created, err := store.CreateUser(ctx, user)
	if err != nil {
		return err
	}
	fmt.Printf("пользователь %s создан (%s)\n", created.FullName(), created.ID)
	return nil
}

func recalculate(ctx context.Context, svc *stamps.Service, loc *time.Location, args []string) error {
	var fromRaw, toRaw string
	flagSet := pflag.NewFlagSet("recalculate", pflag.ContinueOnError)
	flagSet.StringVar(&fromRaw, "from", "", "начало диапазона: YYYY-MM-DD или RFC3339")
	flagSet.StringVar(&toRaw, "to", "", "конец диапазона: YYYY-MM-DD или RFC3339, дата включается целиком")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	from, err := parseBound(fromRaw, loc, false)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseBound(toRaw, loc, true)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	n, err := svc.Recalculate(ctx, from, to)
	if err != nil {
		return err
	}
	fmt.Printf("пересчитано отметок: %d\n", n)
	return nil
}

// parseBound разбирает дату в локальном поясе столовой. Для конца
// диапазона дата без времени означает конец суток.
func parseBound(raw string, loc *time.Location, end bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("значение обязательно")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return day.UTC(), nil
}
