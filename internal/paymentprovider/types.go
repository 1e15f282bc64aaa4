package paymentprovider

// OrderRequest заказ у провайдера, сумма в минимальных единицах валюты (пайсах).
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order ответ провайдера на создание заказа.
type Order struct {
	ID       string
	Amount   int64
	Currency string
}

// Refund ответ провайдера на возврат платежа.
type Refund struct {
	ID     string
	Amount int64
}
