package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
	"fieldline/internal/migrate"
	"fieldline/internal/providers"
	"fieldline/internal/repo"
	"fieldline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline manages field-service work: tasks, crews, estimates, invoices,
and the parts inventory behind them.
- Workspace: the .fieldline directory holding the database; fieldline.yml
  next to it holds server and provider settings.
- Tasks: jobs with a location, costs, priority and dependencies. New tasks
  always start as Not Started.
- Roles: Employee < Dispatcher < Office Admin < Super Admin. Dispatchers
  triage priorities; Office Admins manage tasks, billing and inventory.
- Estimates and invoices: cost rollups over sets of tasks.
- Providers: address validation, receipt OCR, drive time and push run
  through configurable provider cascades (first success wins).
- Event log: diary of changes, view with 'fl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "act as this username (defaults to the local super admin)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(addressCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(driveTimeCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userRegisterCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userSetRoleCmd())
	return user
}

func userRegisterCmd() *cobra.Command {
	var username, password, role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Register(ctx, username, password, auth.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleEmployee), "role")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				users, err := e.ListUsers(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Role", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Username, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userSetRoleCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change an account's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.SetUserRole(ctx, actor, userID, auth.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskSetPriorityCmd())
	task.AddCommand(taskOrderListCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if deadline != "" {
					opts.Deadline = &deadline
				}
				t, err := e.CreateTask(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Description, "description", "", "what the job is")
	cmd.Flags().StringVar(&opts.Location, "location", "", "job site address")
	cmd.Flags().Float64Var(&opts.EstimatedCost, "estimated-cost", 0, "estimated cost")
	cmd.Flags().StringVar(&opts.Priority, "priority", domain.PriorityMedium, "priority")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 deadline")
	cmd.Flags().Int64SliceVar(&opts.Dependencies, "depends-on", nil, "task ids this task depends on")
	cmd.Flags().StringVar(&opts.Comments, "comments", "", "free-form comments")
	cmd.Flags().StringSliceVar(&opts.Attachments, "attachment", nil, "attachment reference (repeatable)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func taskShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.GetTask(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Location", "Status", "Priority", "Est. Cost"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Description, t.Location, t.Status, t.Priority, t.EstimatedCost})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var id int64
	var opts engine.TaskUpdateOptions
	var deadline string
	var finalCost float64
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Overwrite a task (all fields are replaced)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if deadline != "" {
					opts.Deadline = &deadline
				}
				if cmd.Flags().Changed("final-cost") {
					opts.FinalCost = &finalCost
				}
				t, err := e.UpdateTask(ctx, actor, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what the job is")
	cmd.Flags().StringVar(&opts.Location, "location", "", "job site address")
	cmd.Flags().Float64Var(&opts.EstimatedCost, "estimated-cost", 0, "estimated cost")
	cmd.Flags().Float64Var(&finalCost, "final-cost", 0, "final cost")
	cmd.Flags().StringVar(&opts.Status, "status", domain.TaskStatusNotStarted, "status")
	cmd.Flags().StringVar(&opts.Priority, "priority", domain.PriorityMedium, "priority")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 deadline")
	cmd.Flags().Int64SliceVar(&opts.Dependencies, "depends-on", nil, "task ids this task depends on")
	cmd.Flags().StringVar(&opts.Comments, "comments", "", "free-form comments")
	cmd.Flags().StringSliceVar(&opts.Attachments, "attachment", nil, "attachment reference (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func taskSetPriorityCmd() *cobra.Command {
	var id int64
	var priority string
	cmd := &cobra.Command{
		Use:   "set-priority",
		Short: "Set task priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.SetPriority(ctx, actor, id, priority)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("priority")
	return cmd
}

func taskOrderListCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "order-list",
		Short: "Inventory items to reorder for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				ids, err := e.GenerateOrderList(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task_id": id, "item_ids": ids})
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func estimateCmd() *cobra.Command {
	est := &cobra.Command{Use: "estimate", Short: "Manage estimates"}
	est.AddCommand(billingCreateCmd("estimate"))
	est.AddCommand(billingShowCmd("estimate"))
	est.AddCommand(billingListCmd("estimate"))
	return est
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invoice", Short: "Manage invoices"}
	inv.AddCommand(billingCreateCmd("invoice"))
	inv.AddCommand(billingShowCmd("invoice"))
	inv.AddCommand(billingListCmd("invoice"))
	return inv
}

func billingCreateCmd(kind string) *cobra.Command {
	var opts engine.EstimateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create " + kind,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if kind == "invoice" {
					inv, err := e.CreateInvoice(ctx, actor, opts)
					if err != nil {
						return err
					}
					return printJSONOrTable(inv)
				}
				est, err := e.CreateEstimate(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	cmd.Flags().Int64SliceVar(&opts.TaskIDs, "tasks", nil, "task ids covered")
	cmd.Flags().Float64Var(&opts.Total, "total", 0, "total cost")
	cmd.Flags().StringVar(&opts.Region, "region", "", "region")
	cmd.Flags().StringVar(&opts.Store, "store", "", "store")
	cmd.Flags().StringVar(&opts.Manager, "manager", "", "manager")
	_ = cmd.MarkFlagRequired("tasks")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func billingShowCmd(kind string) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show " + kind,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if kind == "invoice" {
					inv, err := e.GetInvoice(ctx, actor, id)
					if err != nil {
						return err
					}
					return printJSONOrTable(inv)
				}
				est, err := e.GetEstimate(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(est)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, kind+" id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func billingListCmd(kind string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + kind + "s",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if kind == "invoice" {
					invs, err := e.ListInvoices(ctx, actor, limit)
					if err != nil {
						return err
					}
					return printJSONOrTable(invs)
				}
				ests, err := e.ListEstimates(ctx, actor, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(ests)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func inventoryCmd() *cobra.Command {
	inv := &cobra.Command{Use: "inventory", Short: "Manage parts inventory"}
	inv.AddCommand(inventoryAddCmd())
	inv.AddCommand(inventoryListCmd())
	inv.AddCommand(inventoryUpdateCmd())
	inv.AddCommand(inventoryDeleteCmd())
	return inv
}

func inventoryFlags(cmd *cobra.Command, opts *engine.InventoryItemOptions, taskID *int64) {
	cmd.Flags().StringVar(&opts.Name, "name", "", "part name")
	cmd.Flags().IntVar(&opts.Quantity, "quantity", 0, "stock on hand")
	cmd.Flags().StringVar(&opts.Location, "location", "", "storage location")
	cmd.Flags().Int64Var(taskID, "task-id", 0, "owning task id")
}

func inventoryAddCmd() *cobra.Command {
	var opts engine.InventoryItemOptions
	var taskID int64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add inventory item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("task-id") {
					opts.TaskID = &taskID
				}
				item, err := e.CreateInventoryItem(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	inventoryFlags(cmd, &opts, &taskID)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func inventoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List inventory items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListInventoryItems(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Quantity", "Location", "Task"})
				for _, item := range items {
					taskRef := ""
					if item.TaskID != nil {
						taskRef = fmt.Sprint(*item.TaskID)
					}
					tw.AppendRow(table.Row{item.ID, item.Name, item.Quantity, item.Location, taskRef})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func inventoryUpdateCmd() *cobra.Command {
	var id, taskID int64
	var opts engine.InventoryItemOptions
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Overwrite inventory item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("task-id") {
					opts.TaskID = &taskID
				}
				item, err := e.UpdateInventoryItem(ctx, actor, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "item id")
	inventoryFlags(cmd, &opts, &taskID)
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func inventoryDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete inventory item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.DeleteInventoryItem(ctx, actor, id); err != nil {
					return err
				}
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "item id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func addressCmd() *cobra.Command {
	addr := &cobra.Command{Use: "address", Short: "Address tools"}
	var address string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate and normalize an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := providerService()
			if err != nil {
				return err
			}
			res, err := svc.ValidateAddress(cmd.Context(), address)
			if err != nil {
				return err
			}
			return printJSONOrTable(res)
		},
	}
	validate.Flags().StringVar(&address, "address", "", "address to validate")
	_ = validate.MarkFlagRequired("address")
	addr.AddCommand(validate)
	return addr
}

func receiptCmd() *cobra.Command {
	receipt := &cobra.Command{Use: "receipt", Short: "Receipt tools"}
	var file string
	var taskID int64
	var slot string
	scan := &cobra.Command{
		Use:   "scan",
		Short: "Extract text from a receipt image",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			svc, err := providerService()
			if err != nil {
				return err
			}
			res, err := svc.ScanReceipt(cmd.Context(), image)
			if err != nil {
				return err
			}
			if taskID != 0 {
				err = withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					actor, err := localActor(ctx, e)
					if err != nil {
						return err
					}
					_, err = e.RecordScan(ctx, actor, taskID, slot, res.Text)
					return err
				})
				if err != nil {
					return err
				}
			}
			return printJSONOrTable(res)
		},
	}
	scan.Flags().StringVar(&file, "file", "", "receipt image file")
	scan.Flags().Int64Var(&taskID, "task-id", 0, "record the text on this task")
	scan.Flags().StringVar(&slot, "slot", engine.ScanSlotAfter, "scan slot (before|after)")
	_ = scan.MarkFlagRequired("file")
	receipt.AddCommand(scan)
	return receipt
}

func driveTimeCmd() *cobra.Command {
	var origin, destination string
	cmd := &cobra.Command{
		Use:   "drive-time",
		Short: "Estimate drive time between two addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := providerService()
			if err != nil {
				return err
			}
			res, err := svc.CalculateDriveTime(cmd.Context(), origin, destination)
			if err != nil {
				return err
			}
			return printJSONOrTable(res)
		},
	}
	cmd.Flags().StringVar(&origin, "from", "", "origin address")
	cmd.Flags().StringVar(&destination, "to", "", "destination address")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func notifyCmd() *cobra.Command {
	var token, title, body string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a push notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := providerService()
			if err != nil {
				return err
			}
			svc.SendPush(cmd.Context(), providers.PushMessage{
				DeviceToken: token,
				Title:       title,
				Body:        body,
			})
			fmt.Println("dispatched")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "device-token", "", "target device token")
	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&body, "body", "", "notification body")
	_ = cmd.MarkFlagRequired("device-token")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				k, raw, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": k.ID, "key": raw, "name": k.Name})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	key.AddCommand(create)

	key.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				keys, err := e.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	})

	var id string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				return e.DeleteAPIKey(ctx, actor, id)
			})
		},
	}
	del.Flags().StringVar(&id, "id", "", "key id")
	_ = del.MarkFlagRequired("id")
	key.AddCommand(del)
	return key
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := localActor(ctx, e)
				if err != nil {
					return err
				}
				events, err := e.TailEvents(ctx, actor, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	lg.AddCommand(tail)
	return lg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOrDefault(workspace)
			if err != nil {
				return err
			}
			secret := os.Getenv("FIELDLINE_JWT_SECRET")
			if secret == "" {
				secret = cfg.Server.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("FIELDLINE_JWT_SECRET or server.jwt_secret is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:    e,
				Providers: providers.FromConfig(cfg.Providers),
				BasePath:  basePath,
				Auth: server.AuthConfig{
					JWTSecret: secret,
					TokenTTL:  time.Duration(cfg.Server.TokenTTLMinutes) * time.Minute,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fieldline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

// localActor resolves who CLI commands run as. With --as it loads that
// account and uses its role; otherwise commands run as a local super admin,
// since the operator already has the database file.
func localActor(ctx context.Context, e engine.Engine) (engine.Actor, error) {
	if username := viper.GetString("as"); username != "" {
		u, err := e.Repo.GetUserByUsername(ctx, username)
		if err != nil {
			return engine.Actor{}, fmt.Errorf("resolve --as %s: %w", username, err)
		}
		return engine.Actor{ID: u.ID, Role: auth.Role(u.Role)}, nil
	}
	return engine.Actor{ID: "local-admin", Role: auth.RoleSuperAdmin}, nil
}

func providerService() (*providers.Service, error) {
	cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	return providers.FromConfig(cfg.Providers), nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
