package server

import "fieldline/internal/domain"

// Request payloads

type RegisterRequest struct {
	Username string `json:"username" minLength:"1"`
	Password string `json:"password" minLength:"1"`
	Role     string `json:"role" enum:"Employee,Dispatcher,Office Admin,Super Admin"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"Employee,Dispatcher,Office Admin,Super Admin"`
}

// CreateTaskRequest accepts a status field for compatibility with older
// clients; it is ignored and new tasks always start as Not Started.
type CreateTaskRequest struct {
	Description   string   `json:"description"`
	Location      string   `json:"location"`
	EstimatedCost float64  `json:"estimated_cost"`
	Priority      string   `json:"priority" enum:"Low,Medium,High,Urgent"`
	Status        *string  `json:"status,omitempty"`
	Deadline      *string  `json:"deadline,omitempty" format:"date-time"`
	Dependencies  []int64  `json:"dependencies,omitempty"`
	Comments      string   `json:"comments,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
}

// UpdateTaskRequest overwrites every mutable field of the task.
type UpdateTaskRequest struct {
	Description   string   `json:"description"`
	Location      string   `json:"location"`
	EstimatedCost float64  `json:"estimated_cost"`
	FinalCost     *float64 `json:"final_cost,omitempty"`
	Status        string   `json:"status" enum:"Not Started,In Progress,Completed,Cancelled"`
	Priority      string   `json:"priority" enum:"Low,Medium,High,Urgent"`
	Deadline      *string  `json:"deadline,omitempty" format:"date-time"`
	Dependencies  []int64  `json:"dependencies,omitempty"`
	Comments      string   `json:"comments,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
	BeforeScan    *string  `json:"before_scan,omitempty"`
	AfterScan     *string  `json:"after_scan,omitempty"`
}

type SetPriorityRequest struct {
	Priority string `json:"priority" enum:"Low,Medium,High,Urgent"`
}

type EstimateRequest struct {
	TaskIDs []int64 `json:"task_ids" minItems:"1"`
	Total   float64 `json:"total"`
	Region  string  `json:"region,omitempty"`
	Store   string  `json:"store,omitempty"`
	Manager string  `json:"manager,omitempty"`
}

type InventoryItemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Location string `json:"location,omitempty"`
	TaskID   *int64 `json:"task_id,omitempty"`
}

type ValidateAddressRequest struct {
	Address string `json:"address" minLength:"1"`
}

type ScanReceiptRequest struct {
	// Image is the receipt photo, base64-encoded.
	Image string `json:"image" minLength:"1"`
	// TaskID, when set, records the extracted text on the task's scans.
	TaskID *int64  `json:"task_id,omitempty"`
	Slot   *string `json:"slot,omitempty" enum:"before,after"`
}

type DriveTimeRequest struct {
	Origin      string `json:"origin" minLength:"1"`
	Destination string `json:"destination" minLength:"1"`
}

type NotifyRequest struct {
	DeviceToken string `json:"device_token" minLength:"1"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type TokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

type OrderListResponse struct {
	TaskID  int64   `json:"task_id"`
	ItemIDs []int64 `json:"item_ids"`
}

type APIKeyResponse struct {
	domain.APIKey
	// Key is the raw secret, returned once at creation.
	Key string `json:"key,omitempty"`
}
