package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/auth"
	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return
	}

	logger := zap.NewNop()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(cfg)
	if err != nil {
		fmt.Printf("Error initializing store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := auth.NewService(st, logger)

	switch args[0] {
	case "add":
		if len(args) < 2 {
			fmt.Println("Usage: docsheet-admin add <email> [role]")
			os.Exit(1)
		}
		email := args[1]
		role := "annotator"
		if len(args) > 2 {
			role = args[2]
		}

		password := promptPassword()
		user, err := svc.Register(auth.RegisterInput{
			Email:    email,
			Password: password,
			Role:     role,
		})
		if err != nil {
			fmt.Printf("Error creating user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created %s (%s)\n", user.Email, user.Role)

	case "list", "ls":
		users, err := svc.List()
		if err != nil {
			fmt.Printf("Error listing users: %v\n", err)
			os.Exit(1)
		}
		if len(users) == 0 {
			fmt.Println("No accounts found. Create one with: docsheet-admin add <email>")
			return
		}
		fmt.Println("Accounts:")
		fmt.Println("=========")
		for _, u := range users {
			status := "active"
			if !u.IsActive {
				status = "suspended"
			}
			last := "never"
			if u.LastLogin != nil {
				last = u.LastLogin.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  %-30s %-10s %-10s last login: %s\n", u.Email, u.Role, status, last)
		}

	case "suspend":
		requireEmail(args, "suspend")
		if err := svc.Suspend(args[1]); err != nil {
			fmt.Printf("Error suspending user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Suspended %s\n", args[1])

	case "unsuspend":
		requireEmail(args, "unsuspend")
		if err := svc.Unsuspend(args[1]); err != nil {
			fmt.Printf("Error unsuspending user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Unsuspended %s\n", args[1])

	case "passwd":
		requireEmail(args, "passwd")
		password := promptPassword()
		if err := svc.SetPassword(args[1], password); err != nil {
			fmt.Printf("Error setting password: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Password updated for %s\n", args[1])

	case "delete", "rm":
		requireEmail(args, "delete")
		fmt.Printf("Delete account %s? (yes/no): ", args[1])
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Cancelled")
			return
		}
		if err := svc.Delete(args[1]); err != nil {
			fmt.Printf("Error deleting user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %s\n", args[1])

	default:
		printUsage()
	}
}

func requireEmail(args []string, cmd string) {
	if len(args) < 2 {
		fmt.Printf("Usage: docsheet-admin %s <email>\n", cmd)
		os.Exit(1)
	}
}

func promptPassword() string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	return strings.TrimSpace(password)
}

func printUsage() {
	fmt.Println("docsheet-admin - account management")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docsheet-admin add <email> [role]     Create an account (roles: annotator, admin)")
	fmt.Println("  docsheet-admin list                   List accounts")
	fmt.Println("  docsheet-admin suspend <email>        Suspend an account")
	fmt.Println("  docsheet-admin unsuspend <email>      Reactivate an account")
	fmt.Println("  docsheet-admin passwd <email>         Set a new password")
	fmt.Println("  docsheet-admin delete <email>         Delete an account")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -config <path>    Path to config file")
	fmt.Println("  -data <path>      Path to data directory")
}
